// Package cli is the docdesk command-line front-end. Every command builds
// the client stack from config, restores the stored session and then drives
// the workspace stores.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"docdesk/internal/config"
	"docdesk/internal/util"
	"docdesk/pkg/apiclient"
	"docdesk/pkg/preflight"
	"docdesk/pkg/session"
	"docdesk/pkg/tokenstore"
	"docdesk/pkg/workspace"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Deps overrides parts of the stack; zero values come from config.
type Deps struct {
	Tokens tokenstore.Store
	// In is read for passwords not given as flags.
	In io.Reader
}

type app struct {
	deps       Deps
	configPath string
	apiURL     string
	logLevel   string
	jsonOut    bool

	cfg     config.FileConfig
	logger  *slog.Logger
	tokens  tokenstore.Store
	client  *apiclient.Client
	session *session.Session
	ws      *workspace.Workspace
}

// NewRootCommand builds the docdesk command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	a := &app{deps: deps}
	root := &cobra.Command{
		Use:   "docdesk",
		Short: "Work with documents, chats and summaries on a docdesk backend",
		Long: `docdesk signs in to a document backend and keeps the session on disk,
so later commands reuse it until you log out.

Quick Start:
  docdesk login --email you@example.com
  docdesk docs upload report.pdf
  docdesk chat send <document-id> "What is this about?"`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default docdesk.yaml or $DOCDESK_CONFIG)")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "API base URL, overrides config")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of styled text")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.watchCmd(),
		a.healthCmd(),
		a.docsCmd(),
		a.chatCmd(),
		a.compareCmd(),
		a.summariesCmd(),
		a.adminCmd(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, deps Deps) error {
	root := NewRootCommand(deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIBaseURL = strings.TrimSpace(a.apiURL)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = util.InitLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)

	tokens, err := a.tokenStore()
	if err != nil {
		return err
	}
	a.tokens = tokens
	timeout, err := config.ParseRequestTimeout(cfg.RequestTimeout)
	if err != nil {
		return err
	}
	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Tokens:  tokens,
		Timeout: timeout,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	a.client = client
	a.session = session.New(client, a.logger)
	a.ws = workspace.New(client, a.session, workspace.Options{
		Preflight: preflight.New(preflight.Config{
			MaxFileSize:  cfg.MaxFileSize,
			AllowedTypes: cfg.AllowedFileTypes,
		}),
		Logger: a.logger,
	})
	return nil
}

func (a *app) tokenStore() (tokenstore.Store, error) {
	if a.deps.Tokens != nil {
		return a.deps.Tokens, nil
	}
	switch a.cfg.TokenStore {
	case config.TokenStoreMemory:
		return tokenstore.NewMemory(), nil
	case config.TokenStoreRedis:
		return tokenstore.NewRedis(tokenstore.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			Profile:  a.cfg.RedisProfile,
		})
	default:
		path := a.cfg.TokenFile
		if path == "" {
			path = tokenstore.DefaultFilePath()
		}
		return tokenstore.NewFile(path)
	}
}

func (a *app) teardown() error {
	if a.deps.Tokens != nil {
		return nil
	}
	if c, ok := a.tokens.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var errSignedOut = errors.New("not signed in, run `docdesk login` first")

// restore bootstraps the stored session and requires a signed-in user.
func (a *app) restore(ctx context.Context) error {
	a.session.Bootstrap(ctx)
	if _, err := a.session.RequireUser(); err != nil {
		return errSignedOut
	}
	return nil
}

// restoreWithDocuments is restore followed by a document list refresh, which
// chat and document commands need before they can address a document.
func (a *app) restoreWithDocuments(ctx context.Context) error {
	if err := a.restore(ctx); err != nil {
		return err
	}
	return a.ws.Documents.Refresh(ctx)
}
