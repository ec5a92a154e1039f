package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ivlev/stereo2video/internal/capture"
	"github.com/ivlev/stereo2video/internal/config"
	"github.com/ivlev/stereo2video/internal/engine"
	"github.com/ivlev/stereo2video/internal/logging"
	"github.com/ivlev/stereo2video/internal/system"
	"github.com/ivlev/stereo2video/internal/video"
)

// buildVersion is set with -ldflags "-X main.buildVersion=..."
var buildVersion = "dev"

const (
	starlessDir = "input/starless"
	starsDir    = "input/stars"
	outputDir   = "output"
)

func main() {
	// Создаем нужные директории, если их нет
	for _, d := range []string{starlessDir, starsDir, outputDir} {
		os.MkdirAll(d, 0755)
	}

	configPtr := flag.String("config", "", "YAML-файл настроек (флаги переопределяют значения из файла)")
	saveConfigPtr := flag.String("save-config", "", "Сохранить итоговые настройки в YAML и выйти")
	starlessPtr := flag.String("starless", "", "Фон без звезд (по умолчанию: самый свежий файл в input/starless/)")
	starsPtr := flag.String("stars", "", "Слой звезд (по умолчанию: самый свежий файл в input/stars/)")
	outputPtr := flag.String("output", "", "Путь к видео (если пусто, генерируется автоматически в output/)")
	previewPtr := flag.Bool("preview", false, "Проиграть анимацию в реальном времени и сохранить последний кадр в PNG")
	statsPtr := flag.Bool("stats", false, "Показать отчет о производительности и дописать benchmark.log")
	logLevelPtr := flag.String("log-level", "info", "Уровень логов: debug, info, warn, error")

	// стерео
	displacePtr := flag.Float64("displace", 20, "Максимальный параллакс, px")
	starShiftPtr := flag.Float64("star-shift", 0, "Сдвиг слоя звезд в правом глазу, px")
	blurPtr := flag.Float64("blur", 0, "Радиус размытия карты глубины, px")
	contrastPtr := flag.Float64("contrast", 1.0, "Усиление контраста (>= 1.0)")
	spacingPtr := flag.Int("spacing", 20, "Промежуток между кадрами для глаз, px")
	borderPtr := flag.Int("border", 0, "Черная рамка, px")

	// анимация
	motionPtr := flag.String("motion", config.MotionZoomIn, "Движение: zoom_in, zoom_out, pan_left, pan_right")
	speedPtr := flag.Float64("speed", 1.0, "Скорость предпросмотра")
	ampPtr := flag.Float64("amplification", 20, "Амплитуда движения, %")
	spinPtr := flag.Float64("spin", 0, "Поворот за весь ролик, градусы")
	spinDirPtr := flag.String("spin-dir", config.SpinClockwise, "Направление поворота: clockwise, counterclockwise")
	easingPtr := flag.String("easing", config.EasingLinear, "Сглаживание: linear, ease_in_out")

	// экспорт
	widthPtr := flag.Int("width", 0, "Ширина видео (0 - авто)")
	heightPtr := flag.Int("height", 0, "Высота видео (0 - авто)")
	fpsPtr := flag.Int("fps", 30, "FPS")
	durationPtr := flag.Float64("duration", 10, "Длительность видео, сек")
	qualityPtr := flag.String("quality", config.QualityHigh, "Качество: low, medium, high, ultra")
	bitratePtr := flag.Int("bitrate", 0, "Битрейт, кбит/с (0 - авто)")
	codecsPtr := flag.String("codecs", strings.Join(config.DefaultCodecs, ","), "Порядок кодеков: hevc, h264, vp9, mjpeg")
	realtimePtr := flag.Bool("realtime", true, "Подавать кадры в энкодер с частотой FPS")
	shareURLPtr := flag.String("share-url", "", "Ссылка для QR-кода в рамке (нужна рамка от 24px)")

	flag.Parse()

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка чтения настроек: %v", err)
		}
		cfg = loaded
		fmt.Printf("[*] Используются настройки: %s\n", *configPtr)
	}
	cfg.BuildVersion = buildVersion

	// только явно заданные флаги переопределяют файл
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "starless":
			cfg.StarlessPath = *starlessPtr
		case "stars":
			cfg.StarsPath = *starsPtr
		case "output":
			cfg.OutputVideo = *outputPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		case "log-level":
			cfg.LogLevel = *logLevelPtr
		case "displace":
			cfg.Stereo.HorizontalDisplace = *displacePtr
		case "star-shift":
			cfg.Stereo.StarShiftAmount = *starShiftPtr
		case "blur":
			cfg.Stereo.LuminanceBlur = *blurPtr
		case "contrast":
			cfg.Stereo.ContrastBoost = *contrastPtr
		case "spacing":
			cfg.Stereo.StereoSpacing = *spacingPtr
		case "border":
			cfg.Stereo.BorderSize = *borderPtr
		case "motion":
			cfg.Animation.MotionType = *motionPtr
		case "speed":
			cfg.Animation.Speed = *speedPtr
		case "amplification":
			cfg.Animation.Amplification = *ampPtr
		case "spin":
			cfg.Animation.Spin = *spinPtr
		case "spin-dir":
			cfg.Animation.SpinDirection = *spinDirPtr
		case "easing":
			cfg.Animation.Easing = *easingPtr
		case "width":
			cfg.Export.Width = *widthPtr
		case "height":
			cfg.Export.Height = *heightPtr
		case "fps":
			cfg.Export.FPS = *fpsPtr
		case "duration":
			cfg.Export.DurationSeconds = *durationPtr
		case "quality":
			cfg.Export.QualityTier = *qualityPtr
		case "bitrate":
			cfg.Export.Bitrate = *bitratePtr
		case "codecs":
			cfg.Export.Codecs = splitList(*codecsPtr)
		case "realtime":
			cfg.Export.RealtimePacing = *realtimePtr
		case "share-url":
			cfg.Export.ShareURL = *shareURLPtr
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Ошибка в настройках: %v", err)
	}

	if *saveConfigPtr != "" {
		if err := config.Write(cfg, *saveConfigPtr); err != nil {
			log.Fatalf("[-] Не удалось сохранить настройки: %v", err)
		}
		fmt.Printf("[+++] Настройки сохранены: %s\n", *saveConfigPtr)
		return
	}

	logger := logging.New(cfg.LogLevel, true)

	if cfg.StarlessPath == "" {
		latest, err := system.FindLatestImage(starlessDir)
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите фон без звезд в %s/", err, starlessDir)
		}
		cfg.StarlessPath = latest
		fmt.Printf("[*] Выбран фон: %s\n", latest)
	}
	if cfg.StarsPath == "" {
		latest, err := system.FindLatestImage(starsDir)
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите слой звезд в %s/", err, starsDir)
		}
		cfg.StarsPath = latest
		fmt.Printf("[*] Выбран слой звезд: %s\n", latest)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probe := system.NewCapabilityProbe("")
	caps := probe.Capabilities(ctx)
	if caps.FFmpegPath == "" {
		fmt.Println("[!] FFmpeg не найден, доступен только MJPEG (AVI)")
	} else if caps.HardwareAccelerated {
		fmt.Printf("[*] Обнаружено аппаратное ускорение: %s (%s)\n", caps.RendererID, caps.VendorID)
	}

	pipeline, err := engine.Load(cfg, engine.Options{Probe: probe, Logger: &logger})
	if err != nil {
		log.Fatalf("[-] Ошибка загрузки изображений: %v", err)
	}
	pipeline.OnWarning = func(err error) {
		var rw *capture.ResourceExhaustionWarning
		if errors.As(err, &rw) {
			fmt.Printf("\n[!] Мало памяти для кадров, попробуйте -width %d -height %d\n", rw.SuggestedWidth, rw.SuggestedHeight)
		}
	}

	fmt.Println("--- [PROJECT: STEREO PARALLAX] ---")
	fmt.Printf("[*] Фон: %s\n", filepath.Base(cfg.StarlessPath))
	fmt.Printf("[*] Звезды: %s\n", filepath.Base(cfg.StarsPath))
	fmt.Printf("[*] Движение: %s | %d FPS | %.2fs | Качество: %s\n",
		cfg.Animation.MotionType, cfg.Export.FPS, cfg.Export.DurationSeconds, cfg.Export.QualityTier)
	fmt.Println("-----------------------------")

	if *previewPtr {
		runPreview(ctx, pipeline, cfg)
		return
	}

	pipeline.OnProgress = func(stage string, done, total int) {
		label := "Захват"
		if stage == engine.StageEncode {
			label = "Кодирование"
		}
		fmt.Printf("\r[>] %s: %d/%d", label, done, total)
		if done == total {
			fmt.Println()
		}
	}

	out, stats, err := pipeline.Export(ctx)
	pipeline.Pool().Drain()
	if err != nil {
		if errors.Is(err, video.ErrEncodingUnsupported) {
			log.Fatalf("\n[-] Ни один кодек из списка не поддерживается: %v", err)
		}
		log.Fatalf("\n[-] Ошибка экспорта: %v", err)
	}

	finalOutput := cfg.OutputVideo
	if finalOutput == "" {
		finalOutput = outputName(cfg.StarlessPath, "", out.Extension)
	} else if ext := strings.TrimPrefix(filepath.Ext(finalOutput), "."); !strings.EqualFold(ext, out.Extension) {
		fmt.Printf("[!] Кодек %s пишет контейнер .%s, а не .%s\n", out.Codec, out.Extension, ext)
	}
	os.MkdirAll(filepath.Dir(finalOutput), 0755)
	if err := os.WriteFile(finalOutput, out.Data, 0644); err != nil {
		log.Fatalf("[-] Не удалось записать видео: %v", err)
	}

	if cfg.ShowStats {
		fmt.Print(stats.Report())
		if err := engine.AppendBenchmark("benchmark.log", stats); err != nil {
			fmt.Printf("[!] Не удалось записать benchmark.log: %v\n", err)
		}
	}

	fmt.Printf("[+++] Успех! Результат: %s (%s, %dx%d, %.2f MB)\n",
		finalOutput, out.MimeType, out.Width, out.Height, float64(out.SizeBytes)/(1<<20))
}

func runPreview(ctx context.Context, pipeline *engine.Pipeline, cfg *config.Config) {
	fmt.Println("[*] Предпросмотр...")
	frame, err := pipeline.Preview(ctx, func(percent float64) {
		fmt.Printf("\r[>] Прогресс: %5.1f%%", percent)
	})
	fmt.Println()
	if err != nil {
		log.Fatalf("[-] Ошибка предпросмотра: %v", err)
	}

	path := cfg.OutputVideo
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		path = outputName(cfg.StarlessPath, "_preview", "png")
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("[-] Не удалось создать файл: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, frame); err != nil {
		log.Fatalf("[-] Не удалось сохранить кадр: %v", err)
	}
	fmt.Printf("[+++] Последний кадр: %s\n", path)
}

// outputName builds output/<name>_<timestamp><suffix>.<ext> from the input.
func outputName(input, suffix, ext string) string {
	baseName := filepath.Base(input)
	nameOnly := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	cleanName := strings.ReplaceAll(nameOnly, " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s%s.%s", cleanName, timestamp, suffix, ext))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
