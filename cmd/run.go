package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/twiced-technology-gmbh/ralphy/internal/clierr"
	"github.com/twiced-technology-gmbh/ralphy/internal/monitor"
	"github.com/twiced-technology-gmbh/ralphy/internal/output"
	"github.com/twiced-technology-gmbh/ralphy/internal/prd"
	"github.com/twiced-technology-gmbh/ralphy/internal/server"
)

// controlPlane starts the in-process HTTP control plane on an ephemeral
// port, runs fn against its base URL, and shuts it down.
func controlPlane(fn func(baseURL string) error, progressFn func(prd.Event)) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	srv := server.New(version, cwd)
	srv.ProgressFn = progressFn
	baseURL, shutdown, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("starting control plane: %w", err)
	}
	defer shutdown()

	return fn(baseURL)
}

// call performs one JSON request against the control plane.
func call(method, rawURL string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling control plane: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

func runInit() error {
	return controlPlane(func(base string) error {
		data, status, err := call(http.MethodPost, base+"/v1/config/init", struct{}{})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return clierr.New(clierr.ConfigExists, errorField(data))
		}
		output.Messagef(os.Stdout, "Initialized .ralphy/config.yaml")
		return nil
	}, nil)
}

func runConfigPrint() error {
	return controlPlane(func(base string) error {
		data, status, err := call(http.MethodGet, base+"/v1/config", nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return clierr.New(clierr.ConfigNotFound, errorField(data))
		}
		_, err = os.Stdout.Write(data)
		return err
	}, nil)
}

func runAddRule(rule string) error {
	return controlPlane(func(base string) error {
		data, status, err := call(http.MethodPost, base+"/v1/config/rules", map[string]string{"rule": rule})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return clierr.New(clierr.InvalidInput, errorField(data))
		}
		output.Messagef(os.Stdout, "Rule added")
		return nil
	}, nil)
}

func runSingle(taskText string) error {
	return controlPlane(func(base string) error {
		req := map[string]any{
			"task":       taskText,
			"engine":     engineName(),
			"skipTests":  skipTests(),
			"skipLint":   skipLint(),
			"autoCommit": autoCommit(),
			"dryRun":     flagDryRun,
			"maxRetries": flagMaxRetries,
			"retryDelay": flagRetryDelay,
		}
		data, status, err := call(http.MethodPost, base+"/v1/run/single", req)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return clierr.New(clierr.ServerError, errorField(data))
		}

		if output.Detect(flagJSON) == output.FormatJSON {
			_, err = os.Stdout.Write(data)
			return err
		}

		var outcome struct {
			Status   string `json:"status"`
			Attempts int    `json:"attempts"`
			Response string `json:"response"`
			Error    string `json:"error"`
			Prompt   string `json:"prompt"`
			ExitCode int    `json:"exitCode"`
		}
		if err := json.Unmarshal(data, &outcome); err != nil {
			return fmt.Errorf("decoding outcome: %w", err)
		}

		switch outcome.Status {
		case "dry-run":
			return printPrompt(outcome.Prompt)
		case "ok":
			output.Messagef(os.Stdout, "%s", outcome.Response)
			if flagVerbose && outcome.Attempts > 1 {
				output.Messagef(os.Stderr, "(succeeded after %d attempts)", outcome.Attempts)
			}
			return nil
		default:
			return clierr.Newf(clierr.AgentFailed, "agent failed after %d attempt(s): %s", outcome.Attempts, outcome.Error)
		}
	}, nil)
}

// printPrompt renders a dry-run prompt, as markdown when the terminal
// supports it.
func printPrompt(prompt string) error {
	if output.ColorEnabled() && !flagNoColor {
		rendered, err := glamour.Render(prompt, "dark")
		if err == nil {
			fmt.Fprint(os.Stdout, rendered)
			return nil
		}
	}
	fmt.Fprintln(os.Stdout, prompt)
	return nil
}

func runPRD() error {
	var mon *monitor.Monitor
	var progressFn func(prd.Event)
	if flagParallel && output.ColorEnabled() && !flagNoColor && !flagJSON {
		mon = monitor.Start()
		progressFn = mon.Notify
	}

	err := controlPlane(func(base string) error {
		req := map[string]any{
			"prd":           flagPRD,
			"yaml":          flagYAML,
			"github":        flagGitHub,
			"githubLabel":   flagGitHubLabel,
			"maxRetries":    flagMaxRetries,
			"retryDelay":    flagRetryDelay,
			"branchPerTask": flagBranchPerTask,
			"baseBranch":    flagBaseBranch,
			"createPr":      flagCreatePR,
			"draftPr":       flagDraftPR,
			"skipTests":     skipTests(),
			"skipLint":      skipLint(),
			"autoCommit":    autoCommit(),
			"parallel":      flagParallel,
			"maxParallel":   flagMaxParallel,
			"engine":        engineName(),
		}
		if flagMaxIterations >= 0 {
			req["maxIterations"] = flagMaxIterations
		}

		data, status, err := call(http.MethodPost, base+"/v1/run/prd", req)
		if mon != nil {
			mon.Stop()
			mon = nil
		}
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return clierr.New(clierr.ServerError, errorField(data))
		}

		if output.Detect(flagJSON) == output.FormatJSON {
			_, err = os.Stdout.Write(data)
			return err
		}

		var res prd.Result
		if err := json.Unmarshal(data, &res); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
		output.RunResult(os.Stdout, &res)
		if res.Status != "ok" {
			return &clierr.SilentError{Code: 1}
		}
		return nil
	}, progressFn)

	if mon != nil {
		mon.Stop()
	}
	return err
}

// errorField extracts the error message from a control-plane error
// payload.
func errorField(data []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return string(data)
}
