package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"

	"ladybug/internal/events"
	"ladybug/internal/shared"
)

func usage() {
	fmt.Println("lbctl commands:")
	fmt.Println("  stats")
	fmt.Println("  servers")
	fmt.Println("  users")
	fmt.Println("  add-server --name NAME --url URL [--user USER] [--pass PASS]")
	fmt.Println("  add-coins --user-id ID --amount N")
	fmt.Println("  force-release --server-id ID")
	fmt.Println("  watch")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg := loadConfig()

	switch os.Args[1] {
	case "stats":
		get(cfg, "/api/servers/stats")
	case "servers":
		get(cfg, "/api/admin/servers")
	case "users":
		get(cfg, "/api/admin/users")
	case "add-server":
		addServerCmd(cfg)
	case "add-coins":
		addCoinsCmd(cfg)
	case "force-release":
		forceReleaseCmd(cfg)
	case "watch":
		watchCmd(cfg)
	default:
		usage()
	}
}

func loadConfig() *shared.CtlConfig {
	path := os.Getenv("LBCTL_CONFIG")
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".config", "ladybug", "ctl.json")
	}
	cfg, err := shared.LoadCtlConfig(path)
	if err != nil {
		cfg = &shared.CtlConfig{ServerURL: "http://localhost:8080"}
	}
	if v := os.Getenv("LBCTL_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("LBCTL_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("LBCTL_NATS"); v != "" {
		cfg.NATSURL = v
	}
	return cfg
}

func do(cfg *shared.CtlConfig, method, path string, body any) {
	var rd io.Reader
	if body != nil {
		bs, _ := json.Marshal(body)
		rd = bytes.NewReader(bs)
	}
	req, err := http.NewRequest(method, strings.TrimRight(cfg.ServerURL, "/")+path, rd)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("http error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("HTTP %d (unreadable body: %v)\n", resp.StatusCode, err)
		os.Exit(1)
	}
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func get(cfg *shared.CtlConfig, path string) {
	do(cfg, http.MethodGet, path, nil)
}

func addServerCmd(cfg *shared.CtlConfig) {
	fs := flag.NewFlagSet("add-server", flag.ExitOnError)
	name := fs.String("name", "", "server display name")
	url := fs.String("url", "", "hosting panel URL")
	user := fs.String("user", "", "hosting panel username")
	pass := fs.String("pass", "", "hosting panel password")
	fs.Parse(os.Args[2:])
	if *name == "" || *url == "" {
		fmt.Println("--name and --url required")
		os.Exit(1)
	}
	do(cfg, http.MethodPost, "/api/admin/servers", shared.AddServerRequest{
		ServerName:   *name,
		HostURL:      *url,
		HostUsername: *user,
		HostPassword: *pass,
	})
}

func addCoinsCmd(cfg *shared.CtlConfig) {
	fs := flag.NewFlagSet("add-coins", flag.ExitOnError)
	userID := fs.String("user-id", "", "account id")
	amount := fs.Int64("amount", 0, "coin delta (may be negative)")
	fs.Parse(os.Args[2:])
	if *userID == "" || *amount == 0 {
		fmt.Println("--user-id and a non-zero --amount required")
		os.Exit(1)
	}
	do(cfg, http.MethodPost, "/api/admin/users/"+*userID+"/coins", shared.AddCoinsRequest{Amount: *amount})
}

func forceReleaseCmd(cfg *shared.CtlConfig) {
	fs := flag.NewFlagSet("force-release", flag.ExitOnError)
	serverID := fs.String("server-id", "", "server id")
	fs.Parse(os.Args[2:])
	if *serverID == "" {
		fmt.Println("--server-id required")
		os.Exit(1)
	}
	do(cfg, http.MethodPost, "/api/admin/servers/"+*serverID+"/release", nil)
}

// watchCmd tails the server's NATS event stream.
func watchCmd(cfg *shared.CtlConfig) {
	url := cfg.NATSURL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("lbctl"))
	if err != nil {
		fmt.Println("nats error:", err)
		os.Exit(1)
	}
	defer nc.Drain()

	subject := events.SubjectPrefix + ">"
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		fmt.Printf("%s %s\n", m.Subject, string(m.Data))
	})
	if err != nil {
		fmt.Println("subscribe error:", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	fmt.Printf("watching %s on %s (ctrl-c to stop)\n", subject, url)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}
