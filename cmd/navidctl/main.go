// Command navidctl is the remote admin client for navid: it drives the
// control-plane API exposed by internal/admin to walk the URL Space, flush
// caches, and list scheduler jobs.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/navispace/navid/internal/cli/output"
	"github.com/navispace/navid/internal/cli/prompt"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	force     bool
)

func main() {
	root := &cobra.Command{
		Use:   "navidctl",
		Short: "remote admin client for navid",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9091", "navid admin API base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("NAVIDCTL_TOKEN"), "bearer token for the admin API")

	root.AddCommand(urlspaceCmd(), cacheCmd(), schedulerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func urlspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urlspace",
		Short: "manage the URL Space",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "walk and list every registered URL Space entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []urlSpaceEntry
			if err := getJSON("/urlspace", &entries); err != nil {
				return err
			}
			table := output.NewTableData("KEY", "URL", "FILTER", "KIND")
			for _, e := range entries {
				table.AddRow(e.Key, e.URL, e.Filter, e.Kind)
			}
			return output.PrintTable(os.Stdout, table)
		},
	})
	return cmd
}

type urlSpaceEntry struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Filter string `json:"filter"`
	Kind   string `json:"kind"`
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "manage caches",
	}
	flushCmd := &cobra.Command{
		Use:   "flush <name>",
		Short: "flush every entry from a named cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Flush cache %q?", args[0]), force)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("aborted")
				return nil
			}
			var result struct {
				Flushed int `json:"flushed"`
			}
			if err := postJSON("/cache/"+args[0]+"/flush", &result); err != nil {
				return err
			}
			fmt.Printf("flushed %d entries from %q\n", result.Flushed, args[0])
			return nil
		},
	}
	flushCmd.Flags().BoolVarP(&force, "force", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(flushCmd)
	return cmd
}

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "inspect the job scheduler",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list every scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobs []jobInfo
			if err := getJSON("/scheduler/jobs", &jobs); err != nil {
				return err
			}
			table := output.NewTableData("ID", "NEXT", "INTERVAL", "PAUSED", "RUNNING")
			for _, j := range jobs {
				table.AddRow(
					fmt.Sprintf("%d", j.ID),
					j.Next.Format(time.RFC3339),
					j.Interval.String(),
					fmt.Sprintf("%v", j.Paused),
					fmt.Sprintf("%v", j.Running),
				)
			}
			return output.PrintTable(os.Stdout, table)
		},
	})
	return cmd
}

type jobInfo struct {
	ID       int           `json:"ID"`
	Next     time.Time     `json:"Next"`
	Interval time.Duration `json:"Interval"`
	Paused   bool          `json:"Paused"`
	Running  bool          `json:"Running"`
}

func getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req, out)
}

func postJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodPost, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req, out)
}

func doRequest(req *http.Request, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("admin API returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
