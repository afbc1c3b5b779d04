// Command schedule_diff replays read-only scheduler queries against a
// baseline and a candidate deployment and reports diverging answers.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type target struct {
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type plan struct {
	ScheduleIDs []string `json:"scheduleIds"`
	Years       []int    `json:"years"`
	Ignore      []string `json:"ignore"`
	Targets     []target `json:"targets"`
}

type query struct {
	Path     string
	Critical bool
}

type outcome struct {
	Query           query
	BaselineStatus  int
	CandidateStatus int
	Diverged        bool
	Err             error
	Elapsed         time.Duration
}

func main() {
	var (
		baseline  string
		candidate string
		planPath  string
		token     string
		timeout   time.Duration
	)
	flag.StringVar(&baseline, "baseline", "http://localhost:8080", "baseline scheduler base URL")
	flag.StringVar(&candidate, "candidate", "http://localhost:8081", "candidate scheduler base URL")
	flag.StringVar(&planPath, "targets", filepath.Join("scripts", "schedule_diff", "targets.json"), "path to JSON targets file")
	flag.StringVar(&token, "token", os.Getenv("SCHEDULER_TOKEN"), "bearer token sent to both deployments")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	flag.Parse()

	logr, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	p, err := loadPlan(planPath)
	if err != nil {
		logr.Fatal("load targets", zap.Error(err))
	}

	client := &http.Client{Timeout: timeout}
	ignore := make(map[string]struct{}, len(p.Ignore))
	for _, k := range p.Ignore {
		ignore[k] = struct{}{}
	}

	var critical, optional int
	for _, q := range expand(p) {
		res := compare(client, baseline, candidate, token, q, ignore)
		report(logr, res)
		if res.Err != nil || res.Diverged {
			if q.Critical {
				critical++
			} else {
				optional++
			}
		}
	}

	logr.Info("comparison finished", zap.Int("critical", critical), zap.Int("optional", optional))
	if critical > 0 {
		os.Exit(1)
	}
}

func loadPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if len(p.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return &p, nil
}

// expand substitutes {schedule} and {year} placeholders with every configured value.
func expand(p *plan) []query {
	var out []query
	for _, t := range p.Targets {
		paths := []string{t.Path}
		if strings.Contains(t.Path, "{schedule}") {
			paths = substitute(paths, "{schedule}", p.ScheduleIDs)
		}
		if strings.Contains(t.Path, "{year}") {
			years := make([]string, 0, len(p.Years))
			for _, y := range p.Years {
				years = append(years, strconv.Itoa(y))
			}
			paths = substitute(paths, "{year}", years)
		}
		for _, path := range paths {
			out = append(out, query{Path: path, Critical: t.Critical})
		}
	}
	return out
}

func substitute(paths []string, placeholder string, values []string) []string {
	out := make([]string, 0, len(paths)*len(values))
	for _, path := range paths {
		for _, v := range values {
			out = append(out, strings.ReplaceAll(path, placeholder, v))
		}
	}
	return out
}

func compare(client *http.Client, baseline, candidate, token string, q query, ignore map[string]struct{}) outcome {
	res := outcome{Query: q}
	start := time.Now()

	baseStatus, baseBody, err := fetch(client, baseline, token, q.Path)
	if err != nil {
		res.Err = fmt.Errorf("baseline: %w", err)
		return res
	}
	candStatus, candBody, err := fetch(client, candidate, token, q.Path)
	if err != nil {
		res.Err = fmt.Errorf("candidate: %w", err)
		return res
	}

	res.Elapsed = time.Since(start)
	res.BaselineStatus = baseStatus
	res.CandidateStatus = candStatus
	res.Diverged = baseStatus != candStatus || !equivalent(baseBody, candBody, ignore)
	return res
}

func fetch(client *http.Client, base, token, path string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// equivalent compares JSON bodies after dropping ignored keys at any depth.
func equivalent(a, b []byte, ignore map[string]struct{}) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return strings.TrimSpace(string(a)) == strings.TrimSpace(string(b))
	}
	return reflect.DeepEqual(strip(av, ignore), strip(bv, ignore))
}

func strip(v interface{}, ignore map[string]struct{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if _, skip := ignore[k]; skip {
				delete(val, k)
				continue
			}
			val[k] = strip(child, ignore)
		}
		return val
	case []interface{}:
		for i, child := range val {
			val[i] = strip(child, ignore)
		}
		return val
	default:
		return v
	}
}

func report(logr *zap.Logger, res outcome) {
	fields := []zap.Field{
		zap.String("path", res.Query.Path),
		zap.Bool("critical", res.Query.Critical),
		zap.Int("baseline_status", res.BaselineStatus),
		zap.Int("candidate_status", res.CandidateStatus),
		zap.Duration("elapsed", res.Elapsed),
	}
	switch {
	case res.Err != nil:
		logr.Error("request failed", append(fields, zap.Error(res.Err))...)
	case res.Diverged:
		logr.Warn("responses diverge", fields...)
	default:
		logr.Info("responses match", fields...)
	}
}
