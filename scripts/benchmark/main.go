package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/adsaver/models"
)

var (
	apiURL   = flag.String("api-url", "http://localhost:3001", "Adsaver API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	urlsFile = flag.String("urls", "", "file with one Ad Library URL per line (required)")
	runs     = flag.Int("runs", 3, "number of runs per URL")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
)

type runResult struct {
	Run        int    `json:"run"`
	LatencyMs  int64  `json:"latency_ms"`
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	CacheHit   bool   `json:"cache_hit"`
	HasVideo   bool   `json:"has_video"`
	FromDOM    bool   `json:"from_dom"`
	Publisher  string `json:"publisher,omitempty"`
	FileSize   string `json:"file_size,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

type urlResult struct {
	URL  string      `json:"url"`
	Runs []runResult `json:"runs"`
	// Percentiles are computed over successful, uncached runs only.
	P50Ms int64 `json:"p50_ms"`
	P90Ms int64 `json:"p90_ms"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()
	if *urlsFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -urls is required")
		os.Exit(2)
	}
	urls, err := readURLs(*urlsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading %s: %v\n", *urlsFile, err)
		os.Exit(1)
	}

	fmt.Println("=== Adsaver Parse Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("URLs:      %d\n", len(urls))
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}
	client := &http.Client{Timeout: 120 * time.Second}

	for _, u := range urls {
		fmt.Printf("Benchmarking %s ...\n", u)
		ur := urlResult{URL: u}
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(client, u, i)
			switch {
			case rr.Error != "":
				fmt.Printf("FAILED [%s] %s\n", rr.ErrorCode, rr.Error)
			case rr.CacheHit:
				fmt.Printf("OK  %dms  (cache)\n", rr.LatencyMs)
			default:
				fmt.Printf("OK  %dms  %s\n", rr.LatencyMs, rr.FileSize)
			}
			ur.Runs = append(ur.Runs, rr)
		}
		ur.P50Ms, ur.P90Ms = percentiles(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(client *http.Client, url string, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(models.ParseRequest{URL: url})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}
	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/parse", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.LatencyMs = time.Since(start).Milliseconds()
	rr.StatusCode = resp.StatusCode

	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		rr.ErrorCode = resp.Header.Get("X-Error-Code")
		rr.Error = e.Error
		if rr.Error == "" {
			rr.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return rr
	}

	var ad models.AdResult
	if err := json.NewDecoder(resp.Body).Decode(&ad); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.CacheHit = ad.CacheStatus == "hit"
	rr.HasVideo = ad.VideoURL != ""
	rr.FromDOM = ad.Success
	rr.Publisher = ad.PublisherName
	rr.FileSize = ad.FileSize
	rr.Duration = ad.VideoDuration
	return rr
}

func percentiles(runs []runResult) (p50, p90 int64) {
	var lat []int64
	for _, r := range runs {
		if r.Error == "" && !r.CacheHit {
			lat = append(lat, r.LatencyMs)
		}
	}
	if len(lat) == 0 {
		return 0, 0
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	at := func(q float64) int64 {
		return lat[int(q*float64(len(lat)-1))]
	}
	return at(0.5), at(0.9)
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tp50\tp90\tOK\tPublisher\n")
	fmt.Fprintf(w, "───\t───\t───\t──\t─────────\n")

	for _, r := range results {
		ok, publisher := 0, "-"
		for _, run := range r.Runs {
			if run.Error == "" {
				ok++
				publisher = run.Publisher
			}
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%d/%d\t%s\n",
			truncateURL(r.URL, 50), r.P50Ms, r.P90Ms, ok, len(r.Runs), publisher)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
