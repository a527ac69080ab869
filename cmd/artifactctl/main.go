// Command artifactctl inspects model artifacts, announces artifact updates
// and calls a running prediction server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"CoinCast/internal/di"
	"CoinCast/internal/domain/models"
	internalrepo "CoinCast/internal/repository"
	"CoinCast/internal/service/coins"
	"CoinCast/internal/usecase"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	applogger "CoinCast/pkg/logger"
)

const usage = `usage: artifactctl [-config path] <command> [flags]

commands:
  inspect -coin eth [-prices file]   load and validate the artifacts of a coin
  notify  -coin eth[,bnb]|*          publish artifact.updated events
  predict -coin eth -prices file     call a running server
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "artifactctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("artifactctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "config/config.yaml", "config file path")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if fs.NArg() == 0 {
		return errors.New(usage)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "inspect", "notify", "predict":
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return err
	}
	switch cmd {
	case "inspect":
		return inspect(cfg, rest, out)
	case "notify":
		return notify(cfg, rest, out)
	default:
		return predict(cfg, rest, out)
	}
}

func inspect(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	coin := fs.String("coin", "", "coin symbol")
	pricesPath := fs.String("prices", "", "optional prices file to run a local prediction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *coin == "" {
		return errors.New("inspect: -coin is required")
	}

	registry, err := coins.NewRegistry(cfg.Artifacts.Dir, cfg.Coins)
	if err != nil {
		return err
	}
	paths, err := registry.Resolve(*coin)
	if err != nil {
		return err
	}

	store := internalrepo.NewFileArtifactStore(applogger.Nop(), nil)
	start := time.Now()
	bundle, err := store.Load(context.Background(), paths)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "coin:   %s\nmodel:  %s\nscaler: %s\nloaded: %s\n",
		paths.Coin, paths.Model, paths.Scaler, time.Since(start).Round(time.Microsecond))
	if named, ok := bundle.Model.(interface{ Name() string }); ok && named.Name() != "" {
		fmt.Fprintf(out, "name:   %s\n", named.Name())
	}

	if *pricesPath == "" {
		return nil
	}
	prices, err := readPrices(*pricesPath)
	if err != nil {
		return err
	}
	uc := usecase.NewPredictUseCase(cfg.Predict.LookBack, registry, store, nil, usecase.HistoryOptions{}, nil, nil)
	pred, err := uc.Predict(context.Background(), *coin, prices)
	if err != nil {
		return err
	}
	return writeJSON(out, models.PredictResponse{Prediction: pred})
}

func notify(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	coinList := fs.String("coin", "", `comma-separated coin symbols, or "*" for every coin`)
	timeout := fs.Duration("timeout", 10*time.Second, "publish timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	evs, err := artifactEvents(*coinList)
	if err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("notify: kafka.brokers is empty")
	}

	pub, err := di.InitializeArtifactPublisher(cfg, nil)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := pub.PublishArtifactEvents(ctx, evs...); err != nil {
		return err
	}
	for _, ev := range evs {
		fmt.Fprintf(out, "published %s for %s on %s\n", ev.Event, ev.Coin, cfg.Kafka.ArtifactsTopic)
	}
	return nil
}

// artifactEvents builds one update event per distinct coin in list.
func artifactEvents(list string) ([]models.ArtifactEvent, error) {
	var evs []models.ArtifactEvent
	seen := make(map[string]bool)
	for _, part := range strings.Split(list, ",") {
		sym := strings.ToLower(strings.TrimSpace(part))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		evs = append(evs, di.ArtifactUpdated(sym))
	}
	if len(evs) == 0 {
		return nil, errors.New("notify: -coin is required")
	}
	return evs, nil
}

func predict(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	coin := fs.String("coin", "", "coin symbol")
	pricesPath := fs.String("prices", "", "prices file")
	baseURL := fs.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port), "server base URL")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *coin == "" || *pricesPath == "" {
		return errors.New("predict: -coin and -prices are required")
	}
	prices, err := readPrices(*pricesPath)
	if err != nil {
		return err
	}

	client := xhttp.NewClient(xhttp.WithTimeout(*timeout))
	var resp models.PredictResponse
	err = client.SendAndParse(context.Background(), &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     strings.TrimRight(*baseURL, "/") + "/predict/" + url.PathEscape(*coin),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    models.PredictRequest{Prices: prices},
	}, &resp)
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("server returned %d: %v", se.StatusCode, se.Detail())
	}
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

// readPrices accepts either a bare JSON array or a {"prices": [...]} body.
func readPrices(path string) ([]float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var prices []float64
		if err := json.Unmarshal(b, &prices); err != nil {
			return nil, fmt.Errorf("decode prices: %w", err)
		}
		return prices, nil
	}
	var req models.PredictRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}
	return req.Prices, nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
