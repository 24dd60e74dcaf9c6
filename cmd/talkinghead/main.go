package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ivlev/talkinghead/internal/config"
	"github.com/ivlev/talkinghead/internal/engine"
	"github.com/ivlev/talkinghead/internal/logging"
	"github.com/ivlev/talkinghead/internal/system"
	"github.com/ivlev/talkinghead/internal/timeline"
)

// BuildVersion is set with -ldflags "-X main.BuildVersion=...".
var BuildVersion = "dev"

const scriptsDir = "input/scripts"

func main() {
	root := &cobra.Command{
		Use:           "talkinghead",
		Short:         "Диалоговое видео с говорящими персонажами из текстового сценария",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Путь к talkinghead.yaml")
	root.PersistentFlags().String("registry", "", "Реестр персонажей (YAML)")
	root.PersistentFlags().String("log-level", "", "Уровень логов: debug, info, warn, error")

	root.AddCommand(analyzeCmd(), renderCmd(), editCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, applies the persistent flags and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg.BuildVersion = BuildVersion
	if v, _ := cmd.Flags().GetString("registry"); v != "" {
		cfg.Paths.Registry = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	system.InitResourceLimits(log)
	return cfg, log, nil
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [script]",
		Short: "Разобрать сценарий в таймлайн (YAML)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := applyRenderFlags(cmd, cfg); err != nil {
				return err
			}
			project, err := engine.Build(cfg, log)
			if err != nil {
				return err
			}
			script, name, err := readScript(args, cmd.InOrStdin(), log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			tl, err := project.Analyze(ctx, script)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = timeline.GeneratePath(filepath.Join(cfg.Paths.Output, "timelines"))
			}
			if err := timeline.Write(tl, out); err != nil {
				return err
			}
			log.Info().Str("script", name).Msgf("[+++] Таймлайн сохранён: %s", out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Куда сохранить таймлайн (по умолчанию output/timelines/)")
	addRenderFlags(cmd)
	return cmd
}

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [script]",
		Short: "Озвучить и отрендерить видео из сценария или таймлайна",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := applyRenderFlags(cmd, cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			detectEncoder(ctx, cfg, log)

			project, err := engine.Build(cfg, log)
			if err != nil {
				return err
			}

			var tl *timeline.Timeline
			name := "timeline"
			if path, _ := cmd.Flags().GetString("timeline"); path != "" {
				tl, err = timeline.Read(path)
				if err != nil {
					return err
				}
				name = path
				log.Info().Msgf("[*] Используется таймлайн: %s", path)
			} else {
				var script string
				script, name, err = readScript(args, cmd.InOrStdin(), log)
				if err != nil {
					return err
				}
				if tl, err = project.Analyze(ctx, script); err != nil {
					return err
				}
			}

			outDir, _ := cmd.Flags().GetString("output")
			if outDir == "" {
				outDir = outputDir(cfg.Paths.Output, name)
			}

			var res *engine.Result
			err = engine.RunWithRetry(ctx, log, func(ctx context.Context) error {
				var rerr error
				res, rerr = project.Render(ctx, tl, outDir)
				return rerr
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+++] Успех! Результат: %s\n", res.Video)
			return nil
		},
	}
	cmd.Flags().String("timeline", "", "Отрендерить готовый таймлайн вместо сценария")
	cmd.Flags().String("output", "", "Папка результата (по умолчанию output/<имя>_<время>)")
	cmd.Flags().String("subtitles", "", "Субтитры: burn, soft, none")
	cmd.Flags().Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	cmd.Flags().String("background", "", "Фон: изображение, SVG или PDF")
	cmd.Flags().String("music", "", "Фоновая музыка под диалогом")
	cmd.Flags().Bool("stats", false, "Показать отчёт о производительности")
	addRenderFlags(cmd)
	return cmd
}

func editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Изменить поле сцены в сохранённом таймлайне",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("timeline")
			if path == "" {
				path, err = timeline.FindLatest(filepath.Join(cfg.Paths.Output, "timelines"))
				if err != nil {
					return err
				}
				log.Info().Msgf("[*] Выбран таймлайн: %s", path)
			}
			scene, _ := cmd.Flags().GetInt("scene")
			field, _ := cmd.Flags().GetString("field")
			value, _ := cmd.Flags().GetString("value")

			tl, err := timeline.Read(path)
			if err != nil {
				return err
			}
			if err := timeline.Edit(tl, scene, field, value); err != nil {
				return err
			}
			if err := timeline.Validate(tl, timeline.StageStructural, cfg.DurationBounds()); err != nil {
				return err
			}
			if err := timeline.Write(tl, path); err != nil {
				return err
			}
			log.Info().Msgf("[+++] Сцена %d: %s = %q", scene, field, value)
			return nil
		},
	}
	cmd.Flags().String("timeline", "", "Таймлайн (по умолчанию самый свежий в output/timelines/)")
	cmd.Flags().Int("scene", 0, "Номер сцены, начиная с 1")
	cmd.Flags().String("field", "", "Поле: text, speaker, emotion, gesture, duration (только паузы)")
	cmd.Flags().String("value", "", "Новое значение")
	cmd.MarkFlagRequired("scene")
	cmd.MarkFlagRequired("field")
	return cmd
}

func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", 0, "Ширина")
	cmd.Flags().Int("height", 0, "Высота")
	cmd.Flags().Int("fps", 0, "FPS")
	cmd.Flags().String("preset", "", "Пресет формата: 9:16 (Shorts/TikTok), 16:9, 4:5 (Instagram), 1:1")
}

// applyRenderFlags copies explicitly set flags over the loaded config.
func applyRenderFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("preset") {
		preset, _ := flags.GetString("preset")
		if err := cfg.ApplyPreset(preset); err != nil {
			return err
		}
	}
	if flags.Changed("width") {
		cfg.Render.Width, _ = flags.GetInt("width")
	}
	if flags.Changed("height") {
		cfg.Render.Height, _ = flags.GetInt("height")
	}
	if flags.Changed("fps") {
		cfg.Render.FPS, _ = flags.GetInt("fps")
	}
	if flags.Lookup("quality") != nil && flags.Changed("quality") {
		cfg.Render.Quality, _ = flags.GetInt("quality")
	}
	if flags.Lookup("subtitles") != nil && flags.Changed("subtitles") {
		cfg.Render.Subtitles, _ = flags.GetString("subtitles")
	}
	if flags.Lookup("background") != nil && flags.Changed("background") {
		cfg.Render.Background, _ = flags.GetString("background")
	}
	if flags.Lookup("music") != nil && flags.Changed("music") {
		cfg.Render.Music, _ = flags.GetString("music")
	}
	if flags.Lookup("stats") != nil && flags.Changed("stats") {
		cfg.Render.ShowStats, _ = flags.GetBool("stats")
	}
	return cfg.Validate()
}

// detectEncoder picks a hardware encoder and drops burned captions when
// ffmpeg was built without libass.
func detectEncoder(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	if cfg.Render.Encoder == "" {
		cfg.Render.Encoder = system.GetBestH264Encoder(ctx, cfg.Paths.FFmpeg)
		if cfg.Render.Encoder != "libx264" {
			log.Info().Msgf("[*] Обнаружено аппаратное ускорение: %s", cfg.Render.Encoder)
		}
	}
	mode := strings.ToLower(cfg.Render.Subtitles)
	if (mode == "" || mode == "burn" || mode == "burned") && !system.HasFilter(ctx, cfg.Paths.FFmpeg, "subtitles") {
		log.Warn().Msg("[!] ffmpeg без фильтра subtitles, субтитры будут отдельной дорожкой")
		cfg.Render.Subtitles = "soft"
	}
}

// readScript reads the script from a file, stdin ("-") or the newest file in
// input/scripts.
func readScript(args []string, stdin io.Reader, log zerolog.Logger) (string, string, error) {
	var path string
	if len(args) > 0 {
		path = args[0]
	}
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "stdin", nil
	}
	if path == "" {
		latest, err := system.FindLatestFile(scriptsDir, ".txt", ".md")
		if err != nil {
			return "", "", fmt.Errorf("%v. Положите сценарий в %s/", err, scriptsDir)
		}
		path = latest
		log.Info().Msgf("[*] Выбран файл: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return string(data), path, nil
}

func outputDir(base, name string) string {
	baseName := filepath.Base(name)
	nameOnly := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	cleanName := strings.ReplaceAll(nameOnly, " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(base, fmt.Sprintf("%s_%s", cleanName, timestamp))
}
