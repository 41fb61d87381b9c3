package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/tripot/companion/adapters/audio"
	"github.com/tripot/companion/adapters/notify"
	"github.com/tripot/companion/adapters/prompt"
	"github.com/tripot/companion/adapters/schedule"
	"github.com/tripot/companion/adapters/tts"
	"github.com/tripot/companion/domain/repositories"
	"github.com/tripot/companion/internal/alarm"
	"github.com/tripot/companion/internal/api"
	"github.com/tripot/companion/internal/auth"
	"github.com/tripot/companion/internal/session"
)

func main() {
	// .env is optional; real deployments configure the environment.
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	userID := getenv("USER_ID", "user_1752303760586_8wi64r")
	httpBase := getenv("BACKEND_HTTP_URL", "http://localhost:8080")
	wsBase := getenv("BACKEND_WS_URL", "ws://localhost:8080")
	port := getenv("COMPANION_PORT", "7788")

	token, err := auth.GenerateSeniorToken(userID)
	if err != nil {
		logger.Fatal("failed to mint client token", zap.Error(err))
	}

	clk := clock.New()
	prompter := prompt.NewConsolePrompter(os.Stdin, os.Stdout, logger)
	notifier := notify.NewMemoryNotifier(logger)
	scheduleRepo := schedule.NewClient(httpBase, token, logger)

	// There is exactly one scheduler per process; it lives as long as
	// the process does.
	scheduler := alarm.New(
		alarm.Config{UserID: userID},
		scheduleRepo,
		notifier,
		prompter,
		clk,
		logger,
	)

	recorder := audio.NewPCMRecorder(micSource(logger), repositories.DefaultAudioConfig(), logger)

	var speaker repositories.Speaker
	if cfg := tts.NewElevenLabsConfigFromEnv(); cfg.APIKey != "" {
		speaker, err = tts.NewElevenLabsSpeaker(cfg, playbackSink(logger), logger)
		if err != nil {
			logger.Fatal("failed to configure speech synthesis", zap.Error(err))
		}
	} else {
		logger.Warn("no speech synthesis configured, printing replies instead")
		speaker = tts.NewConsoleSpeaker(os.Stdout)
	}

	controller := session.New(
		session.Config{
			BaseWSURL: wsBase,
			UserID:    userID,
			Token:     token,
		},
		recorder,
		speaker,
		prompter,
		audio.NewStaticPermissions(getenv("MICROPHONE_ACCESS", "granted") == "granted"),
		clk,
		logger,
	)

	openSession := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return controller.Start(ctx)
	}

	scheduler.SetNavigate(func(screen string) {
		if screen != alarm.SpeakScreen {
			logger.Warn("unknown navigation target", zap.String("screen", screen))
			return
		}
		if err := openSession(); err != nil {
			logger.Error("failed to open voice session", zap.Error(err))
		}
	})
	scheduler.Start()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Deps{
		Scheduler:   scheduler,
		Session:     controller,
		Alarms:      notifier.Registered,
		OpenSession: openSession,
		Logger:      logger,
	})

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the daemon", zap.Error(err))
		}
	}()

	logger.Info("companion daemon started",
		zap.String("userID", userID),
		zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("companion daemon is shutting down...")

	controller.End()
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("daemon forced to shutdown", zap.Error(err))
	}

	logger.Info("companion daemon exited")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// micSource opens the configured PCM capture device, falling back to an
// empty source so the daemon still runs on hardware without one.
func micSource(logger *zap.Logger) io.Reader {
	path := os.Getenv("MIC_SOURCE")
	if path == "" {
		logger.Warn("MIC_SOURCE not set, voice capture will be empty")
		return bytes.NewReader(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("failed to open capture device, voice capture will be empty",
			zap.String("path", path), zap.Error(err))
		return bytes.NewReader(nil)
	}
	return f
}

// playbackSink opens the configured audio output, falling back to
// discarding samples.
func playbackSink(logger *zap.Logger) io.Writer {
	path := os.Getenv("SPEAKER_SINK")
	if path == "" {
		logger.Warn("SPEAKER_SINK not set, synthesized audio will be discarded")
		return io.Discard
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		logger.Warn("failed to open playback device, synthesized audio will be discarded",
			zap.String("path", path), zap.Error(err))
		return io.Discard
	}
	return f
}
