package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parlor/internal/backend"
	_ "github.com/samcharles93/parlor/internal/backend/llamacpp"
	_ "github.com/samcharles93/parlor/internal/backend/toy"
	"github.com/samcharles93/parlor/internal/chat"
	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/inference"
	"github.com/samcharles93/parlor/internal/logger"
	"github.com/samcharles93/parlor/internal/logits"
	"github.com/samcharles93/parlor/internal/metrics"
	"github.com/samcharles93/parlor/internal/project"
	"github.com/samcharles93/parlor/internal/prompt"
)

// app is everything a command needs to hold a conversation with the
// project's model.
type app struct {
	proj     project.Project
	projPath string
	log      logger.Logger
	model    *backend.Shared
	session  *inference.Session
	metrics  *metrics.Metrics
	ctrl     *chat.Controller
	tmpl     prompt.Template
	strategy logits.Strategy
}

func openApp(c *cli.Command) (*app, error) {
	cfg := LoadConfig()
	applyConfig(c, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Setup(os.Stderr, level, logFormat)
	if err != nil {
		return nil, err
	}

	path, err := resolveProjectPath(projectPath)
	if err != nil {
		return nil, err
	}
	proj, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(backendName) != "" {
		proj.Backend = backendName
	}
	proj.Sampling = samplingOverrides(c, cfg, proj.Sampling)
	if err := proj.Validate(); err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}
	return newApp(proj, path, log)
}

// newApp loads the model, opens a session and reads the conversation for a
// validated project.
func newApp(proj project.Project, path string, log logger.Logger) (*app, error) {
	tmpl, err := proj.Template()
	if err != nil {
		return nil, err
	}
	strategy, err := proj.Strategy()
	if err != nil {
		return nil, err
	}

	log.Debug("loading model", "backend", proj.Backend, "path", proj.ResolvedModelPath())
	model, err := backend.Open(proj.Backend, proj.ModelParams())
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	shared := backend.Share(model)

	m := metrics.New()
	sess, err := inference.NewSession(shared, inference.Options{
		Template: tmpl,
		Context:  proj.ContextParams(),
		Seed:     proj.Sampling.Seed,
		Logger:   log,
		Observer: m,
	})
	if err != nil {
		return nil, errors.Join(err, shared.Release())
	}

	conv, err := conversation.Load(proj.PromptsPath())
	switch {
	case isNotExist(err):
		log.Info("starting a new conversation", "path", proj.PromptsPath())
	case err != nil:
		return nil, errors.Join(err, sess.Close(), shared.Release())
	}

	log.Info("project loaded",
		"project", path,
		"backend", proj.Backend,
		"template", proj.TemplateName,
		"strategy", strategy.String(),
		"turns", conv.Len(),
	)

	return &app{
		proj:     proj,
		projPath: path,
		log:      log,
		model:    shared,
		session:  sess,
		metrics:  m,
		ctrl:     chat.New(sess, tmpl, strategy, &conv),
		tmpl:     tmpl,
		strategy: strategy,
	}, nil
}

// Close releases the session and the app's model reference, and writes the
// metrics file when one was requested.
func (a *app) Close() error {
	errs := []error{a.session.Close(), a.model.Release()}
	if metricsFile != "" {
		if err := a.metrics.WriteFile(metricsFile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		} else {
			a.log.Debug("metrics written", "path", metricsFile)
		}
	}
	return errors.Join(errs...)
}

func (a *app) closeAndReport() {
	if err := a.Close(); err != nil {
		a.log.Warn("shutdown", "error", err)
	}
}

func (a *app) save() error {
	path := a.proj.PromptsPath()
	if err := conversation.Save(path, *a.ctrl.Conversation()); err != nil {
		return err
	}
	a.log.Info("conversation saved", "path", path, "turns", a.ctrl.Conversation().Len())
	return nil
}

func (a *app) reload() error {
	path := a.proj.PromptsPath()
	conv, err := conversation.Load(path)
	if err != nil {
		return err
	}
	if err := a.ctrl.Replace(conv); err != nil {
		return err
	}
	a.log.Info("conversation reloaded", "path", path, "turns", conv.Len())
	return nil
}

func exitErr(err error) error {
	return cli.Exit(fmt.Sprintf("error: %v", err), 1)
}
