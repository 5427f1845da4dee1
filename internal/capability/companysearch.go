package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const capCompanySearch = "company_search"

var companyColumns = []string{
	"company_name", "city", "state", "phone", "website", "email",
	"capability", "scope_of_work_ranges",
}

// CompanySearchClient queries a Databricks-style vector search index of
// company records. Only the query path is wrapped; index construction is
// someone else's problem.
type CompanySearchClient struct {
	Host       string
	Token      string
	Index      string
	NumResults int
	Client     *http.Client
}

func NewCompanySearchClient(host, token, index string, numResults int, timeout time.Duration) *CompanySearchClient {
	if numResults < 1 {
		numResults = 5
	}
	if numResults > 10 {
		numResults = 10
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CompanySearchClient{
		Host:       strings.TrimRight(host, "/"),
		Token:      token,
		Index:      index,
		NumResults: numResults,
		Client:     &http.Client{Timeout: timeout},
	}
}

type vectorQueryReq struct {
	QueryText  string   `json:"query_text"`
	NumResults int      `json:"num_results"`
	Columns    []string `json:"columns"`
}

type vectorQueryResp struct {
	Manifest struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
	} `json:"manifest"`
	Result struct {
		DataArray [][]any `json:"data_array"`
		RowCount  int     `json:"row_count"`
	} `json:"result"`
}

// Search runs a similarity query and returns the top matches formatted as
// prompt context, or a no-results line.
func (c *CompanySearchClient) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(vectorQueryReq{
		QueryText:  query,
		NumResults: c.NumResults,
		Columns:    companyColumns,
	})
	if err != nil {
		return "", permanentError(capCompanySearch, err.Error())
	}

	url := fmt.Sprintf("%s/api/2.0/vector-search/indexes/%s/query", c.Host, c.Index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", permanentError(capCompanySearch, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", transportError(capCompanySearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(capCompanySearch, resp.StatusCode)
	}

	var decoded vectorQueryResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", permanentError(capCompanySearch, err.Error())
	}

	cols := make([]string, 0, len(decoded.Manifest.Columns))
	for _, col := range decoded.Manifest.Columns {
		cols = append(cols, col.Name)
	}
	return FormatCompanyResults(cols, decoded.Result.DataArray), nil
}

// FormatCompanyResults renders the top 3 rows as compact company lines.
func FormatCompanyResults(columns []string, rows [][]any) string {
	if len(rows) == 0 {
		return "No companies found matching the search criteria."
	}

	lines := []string{
		fmt.Sprintf("Company Search Results: %d companies found matching your query.", len(rows)),
	}
	for i, row := range rows {
		if i >= 3 {
			break
		}
		rec := make(map[string]string, len(columns))
		for j, col := range columns {
			if j < len(row) && row[j] != nil {
				rec[col] = fmt.Sprintf("%v", row[j])
			}
		}

		name := rec["company_name"]
		if name == "" {
			name = "N/A"
		}
		line := fmt.Sprintf("Company %d: %s", i+1, name)
		if rec["phone"] != "" {
			line += ", Phone: " + rec["phone"]
		}
		if rec["email"] != "" {
			line += ", Email: " + rec["email"]
		}
		if rec["city"] != "" && rec["state"] != "" {
			line += fmt.Sprintf(", Location: %s, %s", rec["city"], rec["state"])
		}
		if cap := rec["capability"]; cap != "" {
			if len(cap) > 100 {
				line += ", Capabilities: " + cap[:100] + "..."
			} else {
				line += ", Capabilities: " + cap
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
