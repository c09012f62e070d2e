package main

import (
	"bufio"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/zhaobenny/datatop/cli/internal/config"
	"github.com/zhaobenny/datatop/cli/internal/history"
	"github.com/zhaobenny/datatop/cli/internal/output"
	"github.com/zhaobenny/datatop/cli/internal/session"
	"github.com/zhaobenny/datatop/cli/internal/transport"
	"github.com/zhaobenny/datatop/internal/accounting"
	"github.com/zhaobenny/datatop/internal/model"
	"golang.org/x/term"
)

type reportOptions struct {
	target       string
	passwordFile string
	caBundle     string
	tlsProbe     string
	skew         bool
	stdin        bool
	json         bool
	noHistory    bool
	debug        bool
}

// executeReport fetches or reads a snapshot, computes the report and prints it to out
func executeReport(ctx context.Context, cfg *config.Config, opts reportOptions, in io.Reader, out io.Writer) error {
	var accountingOpts accounting.Options
	if opts.target != "" {
		t, err := accounting.ParseTarget(opts.target)
		if err != nil {
			return err
		}
		accountingOpts.Target = &t
	}

	if opts.tlsProbe != "" {
		client, err := newClient(cfg, opts.tlsProbe, opts.caBundle)
		if err != nil {
			return err
		}
		if err := client.ProbeTLS(ctx, opts.tlsProbe); err != nil {
			return err
		}
		fmt.Fprintf(out, "TLS probe: %s rejected as expected\n", opts.tlsProbe)
		return nil
	}

	emit := func(report *model.UsageReport) error {
		if opts.json {
			return output.PrintReportJSON(out, report)
		}
		output.PrintReport(out, report, output.ReportOptions{ShowSkew: opts.skew})
		return nil
	}

	var (
		report *model.UsageReport
		err    error
	)
	if opts.stdin {
		snap, err := readSnapshot(in)
		if err != nil {
			return err
		}
		accountingOpts.Now = time.Now()
		if report, err = accounting.Compute(snap, accountingOpts); err != nil {
			return err
		}
		if err := emit(report); err != nil {
			return err
		}
	} else {
		if report, err = fetchReport(ctx, cfg, opts, accountingOpts, in, emit); err != nil {
			return err
		}
	}

	if cfg.HistoryDB != "" && !opts.noHistory && !opts.stdin && report.Active {
		if err := recordHistory(cfg.HistoryDB, report); err != nil {
			log.Warn().Err(err).Str("db", cfg.HistoryDB).Msg("history: report not recorded")
		}
	}
	return nil
}

// fetchReport logs in, computes the report from the fetched snapshot and
// hands it to emit while the session is still open, then logs out
func fetchReport(ctx context.Context, cfg *config.Config, opts reportOptions, accountingOpts accounting.Options, in io.Reader, emit func(*model.UsageReport) error) (*model.UsageReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	password, err := resolvePassword(opts.passwordFile, cfg.PasswordFile, in)
	if err != nil {
		return nil, err
	}

	client, err := newClient(cfg, cfg.BaseURL, opts.caBundle)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("base_url", client.BaseURL()).Msg("report: starting session")

	var report *model.UsageReport
	_, err = session.New(client).Run(ctx, password, func(snap model.PlanSnapshot) error {
		accountingOpts.Now = time.Now()
		r, err := accounting.Compute(snap, accountingOpts)
		if err != nil {
			return err
		}
		report = r
		return emit(r)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func newClient(cfg *config.Config, baseURL, caBundle string) (*transport.Client, error) {
	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithRequestInterval(cfg.RequestInterval),
	}

	if caBundle == "" {
		caBundle = cfg.CABundle
	}
	if caBundle != "" {
		pool, err := loadCABundle(caBundle)
		if err != nil {
			return nil, err
		}
		opts = append(opts, transport.WithRootCAs(pool))
	}

	return transport.New(baseURL, opts...)
}

func loadCABundle(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// readSnapshot reads a usage response document, as the provider sends it,
// with an optional RFC 3339 "serverTime"
func readSnapshot(in io.Reader) (model.PlanSnapshot, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return model.PlanSnapshot{}, fmt.Errorf("reading stdin: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return model.PlanSnapshot{}, errors.New("stdin is not valid JSON")
	}
	body := gjson.ParseBytes(data)

	snap, err := session.ParseUsage(body)
	if err != nil {
		return model.PlanSnapshot{}, err
	}
	snap.CapturedAt = time.Now()

	if st := body.Get("serverTime"); st.Exists() {
		t, err := time.Parse(time.RFC3339, st.String())
		if err != nil {
			return model.PlanSnapshot{}, fmt.Errorf("invalid serverTime: %w", err)
		}
		snap.ServerTime = &t
	}
	return snap, nil
}

// resolvePassword takes the password from the first available source: the
// flag's file, the configured file, the environment, a terminal prompt, or
// the first line of in
func resolvePassword(flagFile, configFile string, in io.Reader) (string, error) {
	for _, path := range []string{flagFile, configFile} {
		if path != "" {
			return readPasswordFile(path)
		}
	}

	if password := os.Getenv(config.EnvPassword); password != "" {
		return password, nil
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	}

	return firstLine(in)
}

func readPasswordFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading password file: %w", err)
	}
	defer f.Close()
	return firstLine(f)
}

func firstLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func recordHistory(path string, report *model.UsageReport) error {
	db, err := history.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	entry, err := db.Record(report, time.Now())
	if err != nil {
		return err
	}
	log.Debug().Str("id", entry.ID).Msg("history: report recorded")
	return nil
}
