package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/talkback/internal/cache"
	"github.com/dgnsrekt/talkback/session"
	"github.com/dgnsrekt/talkback/speech"
	"github.com/dgnsrekt/talkback/speech/audio"
	"github.com/dgnsrekt/talkback/speech/synth"
)

// app is the assembled runtime: audio device, cache, session table, and the
// speech service on top of them.
type app struct {
	Sessions     *session.Store
	Orchestrator *speech.Orchestrator
	Service      *speech.Service

	device *audio.Device
	store  *cache.Store
}

// logNotifier routes user-facing notifications through the logger. The CLI
// has no toast surface, so notifications become log lines.
type logNotifier struct {
	logger *log.Logger
}

func (n logNotifier) Info(msg string)    { n.logger.Info(msg) }
func (n logNotifier) Success(msg string) { n.logger.Info(msg) }
func (n logNotifier) Error(msg string)   { n.logger.Error(msg) }

// newApp builds the full pipeline from viper settings and the environment.
func newApp() (*app, error) {
	logger := log.Default()

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	cacheDir := viper.GetString("cache.dir")
	if cacheDir == "" {
		scope := gap.NewScope(gap.User, "talkback")
		dir, err := scope.CacheDir()
		if err != nil {
			return nil, fmt.Errorf("could not find cache directory: %w", err)
		}
		cacheDir = dir
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create cache directory: %w", err)
	}

	cfg := cache.DefaultConfig(cacheDir)
	if mb := viper.GetInt64("cache.max_mb"); mb > 0 {
		cfg.DiskCapacity = mb * 1024 * 1024
	}
	cfg.CompressionLevel = viper.GetInt("cache.compression")

	store, err := cache.NewStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("could not open segment cache: %w", err)
	}

	device := audio.NewDevice()
	if err := device.Init(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("could not open audio device: %w", err)
	}

	speed := audio.NewSpeedController()
	if r := viper.GetFloat64("rate"); r > 0 {
		_, _ = speed.Set(r)
	}
	engine := audio.NewEngine(device, speed, logger)

	sessions := session.NewStore()
	notify := logNotifier{logger: logger}

	apiKey, _ := ec.key()
	syn := synth.NewThrottled(
		synth.NewOpenAI(apiKey, logger),
		viper.GetInt("requests_per_minute"),
	)
	orch := speech.NewOrchestrator(
		syn,
		store,
		sessions,
		ec,
		logger,
		speech.WithVoice(speech.VoiceSettings{
			Model: viper.GetString("model"),
			Voice: viper.GetString("voice"),
		}),
		speech.WithWordsPerSegment(viper.GetInt("words_per_segment")),
		speech.WithNotifier(notify),
	)

	// The nop session is replaced by a platform binding where one exists;
	// the wiring below stays the same either way.
	media := speech.NopMediaSession{}
	svc := speech.NewService(engine, orch, sessions, store, logger,
		speech.WithServiceNotifier(notify),
		speech.WithMediaSession(media),
		speech.WithAutoplay(viper.GetBool("autoplay"), speech.DefaultAutoplayDebounce),
	)
	speech.BindMediaControls(svc, media)

	return &app{
		Sessions:     sessions,
		Orchestrator: orch,
		Service:      svc,
		device:       device,
		store:        store,
	}, nil
}

// Close stops playback and releases the device and cache. The device gets a
// short grace period so oto can flush its buffer.
func (a *app) Close() {
	a.Service.Stop()
	time.Sleep(50 * time.Millisecond)
	a.device.Teardown()
	if err := a.store.Close(); err != nil {
		log.Error("could not close segment cache", "err", err)
	}
}
