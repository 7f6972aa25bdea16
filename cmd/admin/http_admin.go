package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	adminCmd("state", http.MethodGet, "/admin/v1/state", 5*time.Second, args)
}

func snapshotCmd(args []string) {
	adminCmd("snapshot", http.MethodPost, "/admin/v1/snapshot", 10*time.Second, args)
}

func adminCmd(name, method, route string, timeout time.Duration, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url; admin routes answer loopback only")
	_ = fs.Parse(args)

	if err := callAdmin(&http.Client{Timeout: timeout}, method, *baseURL, route, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// callAdmin sends method to route on the server at base and prints the
// response body to out, indented when it is JSON. Non-2xx answers are errors
// after the body has been printed.
func callAdmin(cl *http.Client, method, base, route string, out io.Writer) error {
	u, err := url.JoinPath(strings.TrimSpace(base), route)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	fmt.Fprintln(out, strings.TrimRight(string(body), "\n"))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, route, resp.Status)
	}
	return nil
}
