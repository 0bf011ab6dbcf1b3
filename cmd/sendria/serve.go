package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/msztolcman/sendria/bus"
	"github.com/msztolcman/sendria/httpapi"
	"github.com/msztolcman/sendria/ingest"
	"github.com/msztolcman/sendria/internal/config"
	"github.com/msztolcman/sendria/internal/reload"
	"github.com/msztolcman/sendria/smtp"
	"github.com/msztolcman/sendria/store"
	"github.com/msztolcman/sendria/webhook"
)

var signalChannel = make(chan os.Signal, 1)

// serve is the rootCmd's Run: load config, build every subsystem, serve
// until a termination signal arrives, following the shape of the
// teacher's serve() (config load, backend construction, sigHandler).
func serve(cmd *cobra.Command, args []string) {
	logVersion()

	cfg, err := config.Load(configPath)
	if err != nil {
		mainlog.Fatalf("loading configuration: %v", err)
	}
	if cfg.Debug {
		mainlog.SetLevel(logrus.DebugLevel)
	}
	if cfg.LogFile != "" {
		if err := mainlog.Rename(cfg.LogFile); err != nil {
			mainlog.WithError(err).Warn("failed to switch to configured log file")
		}
	}
	if pidFile == "" {
		pidFile = cfg.PidFile
	}
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			mainlog.WithError(err).Warn("failed to write pid file")
		}
		defer os.Remove(pidFile)
	}

	db, err := store.Open(cfg.DB)
	if err != nil {
		mainlog.WithError(err).Fatal("opening store")
	}
	defer db.Close()

	broadcastBus := bus.New(mainlog)
	broadcastBus.Run()

	reloadBus := reload.New()

	var smtpAuth *smtp.Htpasswd
	if cfg.SMTPAuth != "" {
		smtpAuth, err = smtp.LoadHtpasswd(cfg.SMTPAuth)
		if err != nil {
			mainlog.WithError(err).Fatal("loading smtp_auth htpasswd file")
		}
	}

	dispatcher := webhook.New(cfg.CallbackWebhookURL, cfg.CallbackWebhookMethod, cfg.CallbackWebhookAuth, mainlog)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)
	defer dispatcher.Close()

	pipeline := &ingest.Pipeline{
		Store:   db,
		Bus:     broadcastBus,
		Webhook: dispatcher,
		Log:     mainlog,
	}

	smtpServer := smtp.New(smtp.Config{
		Ident: cfg.SMTPIdent,
		Auth:  smtpAuth,
	}, pipeline, mainlog)

	smtpListener, err := net.Listen("tcp", net.JoinHostPort(cfg.SMTPIP, strconv.Itoa(cfg.SMTPPort)))
	if err != nil {
		mainlog.WithError(err).Fatal("binding smtp listener")
	}
	go func() {
		if err := smtpServer.Serve(ctx, smtpListener); err != nil {
			mainlog.WithError(err).Error("smtp server stopped")
		}
	}()
	mainlog.Infof("smtp listening on %s", smtpListener.Addr())

	// httpAuth is always built, even with a nil table, so that enabling
	// http_auth later via a SIGHUP reload can wire it in through
	// SetHtpasswd without restarting the listener -- BasicAuth.Wrap skips
	// the credential check entirely while no table is loaded.
	var httpHtpasswd *smtp.Htpasswd
	if cfg.HTTPAuth != "" {
		httpHtpasswd, err = smtp.LoadHtpasswd(cfg.HTTPAuth)
		if err != nil {
			mainlog.WithError(err).Fatal("loading http_auth htpasswd file")
		}
	}
	httpAuth := httpapi.NewBasicAuth(httpHtpasswd, "sendria")

	terminated := make(chan struct{})
	var terminateOnce sync.Once
	httpServer := httpapi.New(httpapi.Options{
		Ident:   fmt.Sprintf("sendria/%s", Version),
		Store:   db,
		Bus:     broadcastBus,
		Auth:    httpAuth,
		NoQuit:  cfg.NoQuit,
		NoClear: cfg.NoClear,
		Terminate: func() {
			terminateOnce.Do(func() { close(terminated) })
		},
	}, mainlog)

	httpListener, err := net.Listen("tcp", net.JoinHostPort(cfg.HTTPIP, strconv.Itoa(cfg.HTTPPort)))
	if err != nil {
		mainlog.WithError(err).Fatal("binding http listener")
	}
	httpServer.ListenAndServeWithClose(httpListener)
	mainlog.Infof("http listening on %s", httpListener.Addr())

	reloadBus.Subscribe(reload.TopicLogReopen, func() {
		if err := mainlog.Reopen(); err != nil {
			mainlog.WithError(err).Warn("failed to reopen log file")
		}
	})
	reloadBus.Subscribe(reload.TopicNewConfig, func() {
		reloadAuthFiles(configPath, smtpServer, httpAuth)
	})

	signal.Notify(signalChannel, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case <-terminated:
			mainlog.Info("termination requested via DELETE /api")
			shutdown(cancel, httpServer, broadcastBus)
			return
		case sig := <-signalChannel:
			switch sig {
			case syscall.SIGHUP:
				mainlog.Info("SIGHUP received, reloading config and reopening log file")
				reloadBus.Publish(reload.TopicNewConfig)
				reloadBus.Publish(reload.TopicLogReopen)
			default:
				mainlog.Info("shutdown signal received")
				shutdown(cancel, httpServer, broadcastBus)
				return
			}
		}
	}
}

// reloadAuthFiles re-reads the configured htpasswd files and swaps them
// into the already-running SMTP and HTTP listeners, so editing an auth
// file takes effect on SIGHUP without rebinding either port.
func reloadAuthFiles(cfgPath string, smtpServer *smtp.Server, httpAuth *httpapi.BasicAuth) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		mainlog.WithError(err).Warn("failed to reload configuration")
		return
	}

	if cfg.SMTPAuth != "" {
		auth, err := smtp.LoadHtpasswd(cfg.SMTPAuth)
		if err != nil {
			mainlog.WithError(err).Warn("failed to reload smtp_auth htpasswd file")
		} else {
			smtpServer.SetAuth(auth)
		}
	} else {
		smtpServer.SetAuth(nil)
	}

	if cfg.HTTPAuth != "" {
		auth, err := smtp.LoadHtpasswd(cfg.HTTPAuth)
		if err != nil {
			mainlog.WithError(err).Warn("failed to reload http_auth htpasswd file")
		} else {
			httpAuth.SetHtpasswd(auth)
		}
	} else {
		httpAuth.SetHtpasswd(nil)
	}
}

func shutdown(cancel context.CancelFunc, httpServer *httpapi.Server, b *bus.Bus) {
	b.Close()
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = httpServer.Shutdown(ctx)
	cancel()
}
