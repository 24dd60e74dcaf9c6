package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/talkinghead/internal/system"
)

type Stats struct {
	Total        time.Duration
	Synthesis    time.Duration
	Render       time.Duration
	Frames       int
	SpriteHits   int
	SpriteMisses int
}

// EffectiveFPS is frames written per second of wall time spent rendering.
func (s Stats) EffectiveFPS() float64 {
	if s.Render <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Render.Seconds()
}

func (p *Project) report(ctx context.Context, res *Result, outDir string, log zerolog.Logger) {
	s := res.Stats
	host := system.TakeSnapshot()

	probed := "n/a"
	if d, err := system.ProbeDuration(ctx, p.Config.Paths.FFprobe, res.Video); err == nil {
		probed = fmt.Sprintf("%.2fs", d)
	} else {
		log.Debug().Err(err).Msg("ffprobe unavailable")
	}

	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Job: %s\n"+
			"Total Time: %.2fs\n"+
			"Synthesis: %.2fs\n"+
			"Rendering + Encoding: %.2fs\n"+
			"Frames: %d (video %s, timeline %.2fs)\n"+
			"Effective FPS: %.2f\n"+
			"Sprite cache: %d hits / %d misses\n"+
			"Host: %d CPU | RAM %.1f%% used | RSS %d MB\n"+
			"----------------------------\n",
		p.Config.BuildVersion, res.JobID, s.Total.Seconds(), s.Synthesis.Seconds(), s.Render.Seconds(),
		s.Frames, probed, res.Duration, s.EffectiveFPS(), s.SpriteHits, s.SpriteMisses,
		host.CPUs, host.MemUsedPct, host.ProcessRSS/(1<<20),
	)
	fmt.Print(report)

	entry := fmt.Sprintf("[%s] Build: %s | Job: %s | Scenes: %d | Frames: %d | Total: %.2fs | Synth: %.2fs | Render: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		p.Config.BuildVersion,
		res.JobID,
		len(res.Rendered.Scenes),
		s.Frames,
		s.Total.Seconds(),
		s.Synthesis.Seconds(),
		s.Render.Seconds(),
		s.EffectiveFPS(),
	)
	f, err := os.OpenFile(filepath.Join(outDir, "benchmark.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Warn().Err(err).Msg("[!] Не удалось записать benchmark.log")
		return
	}
	f.WriteString(entry)
	f.Close()
}
