package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"drawio_gif/config"
	"drawio_gif/controllers"
	"drawio_gif/internal/app"
	"drawio_gif/internal/pipeline"
	"drawio_gif/pkg/exporter"
	"drawio_gif/pkg/pages"
)

const usage = `Usage: convert [flags] <input> <output> [duration] [fps]

Arguments:
  input      draw.io diagram (.drawio/.xml) or exported HTML (.html/.htm)
  output     path for the output GIF, or the zip archive with -all
  duration   recording duration in seconds (default: 5)
  fps        frames per second (default: 10)

Examples:
  convert diagram.drawio output.gif
  convert diagram.drawio output.gif 10 15
  convert -all diagram.drawio pages.zip
  convert -list diagram.drawio

Flags:
`

// options 命令行参数
type options struct {
	configPath string
	input      string
	output     string
	list       bool
	timeout    time.Duration
	params     exporter.Params
}

// parseArgs 解析命令行参数
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	opts := &options{params: exporter.DefaultParams()}
	fs.StringVar(&opts.configPath, "config", "", "配置文件路径")
	fs.BoolVar(&opts.params.ExportAll, "all", false, "导出全部页面为 zip")
	fs.IntVar(&opts.params.PageIndex, "page", 0, "导出的页面序号")
	fs.BoolVar(&opts.list, "list", false, "只列出页面")
	fs.DurationVar(&opts.timeout, "timeout", 0, "整体超时，0 表示使用配置中的 server.request_timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if opts.list {
		if len(rest) != 1 {
			fs.Usage()
			return nil, errors.New("-list 需要且只需要一个输入文件")
		}
		opts.input = rest[0]
		return opts, nil
	}
	if len(rest) < 2 || len(rest) > 4 {
		fs.Usage()
		return nil, errors.New("参数数量错误")
	}
	opts.input, opts.output = rest[0], rest[1]

	ints := []*int{&opts.params.DurationSeconds, &opts.params.FPS}
	for i, arg := range rest[2:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", exporter.ErrInvalidInput, arg)
		}
		*ints[i] = n
	}
	if err := opts.params.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// ConvertJob 一次命令行转换
type ConvertJob struct {
	pipeline.BaseJob
	opts     *options
	exporter *exporter.Exporter
	logger   *controllers.LoggerManager
	source   exporter.Source
	result   *exporter.Result
}

// Init 读取输入文件并识别文档类型
func (j *ConvertJob) Init() error {
	kind, err := pages.KindFromFilename(j.opts.input)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(j.opts.input)
	if err != nil {
		return fmt.Errorf("读取输入文件失败: %w", err)
	}
	if kind == pages.KindDiagram && !pages.LooksLikeDiagram(string(content)) {
		return fmt.Errorf("%w: %s is not a draw.io file", exporter.ErrInvalidInput, j.opts.input)
	}
	j.source = exporter.Source{
		Name:    filepath.Base(j.opts.input),
		Kind:    kind,
		Content: string(content),
	}
	return nil
}

// Process 转换并写出结果
func (j *ConvertJob) Process(ctx context.Context) error {
	p := j.opts.params
	j.logger.Logf("INFO", "Converting %s to %s...", j.opts.input, j.opts.output)
	j.logger.Logf("INFO", "Recording for %d seconds at %d fps", p.DurationSeconds, p.FPS)

	result, err := j.exporter.Convert(ctx, j.source, p)
	if err != nil {
		return err
	}
	j.result = result
	if err := os.WriteFile(j.opts.output, result.Data, 0o644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	return nil
}

// Cleanup 输出本次转换的摘要
func (j *ConvertJob) Cleanup() error {
	if j.result == nil {
		return nil
	}
	j.logger.Logf("INFO", "Conversion completed successfully! %d page(s), %d bytes", len(j.result.Pages), len(j.result.Data))
	return nil
}

// listPages 以 JSON 输出页面列表
func listPages(w io.Writer, input string) error {
	kind, err := pages.KindFromFilename(input)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("读取输入文件失败: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pages.Discover(kind, string(content)))
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if opts.list {
		if err := listPages(os.Stdout, opts.input); err != nil {
			log.Fatalf("列出页面失败: %v", err)
		}
		return
	}

	if err := config.LoadConfig(opts.configPath); err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}
	cfg := config.GlobalConfig

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer logger.Close()

	exp, err := app.NewExporter(cfg, logger)
	if err != nil {
		log.Fatalf("转换器初始化失败: %v", err)
	}

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = cfg.Server.RequestTimeout
	}
	job := &ConvertJob{
		BaseJob: pipeline.BaseJob{
			Name:        "convert",
			Description: "将图表动画录制为 GIF",
			Timeout:     timeout,
		},
		opts:     opts,
		exporter: exp,
		logger:   logger,
	}

	if err := pipeline.Run(context.Background(), job, job.Timeout); err != nil {
		logger.Log("ERROR", "Error during conversion: "+err.Error())
		logger.Close()
		os.Exit(1)
	}
}
