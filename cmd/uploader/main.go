// Package main 是上传客户端命令行工具。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"chunkvault/internal/config"
	"chunkvault/pkg/log"
	"chunkvault/pkg/uploader"

	"github.com/docker/go-units"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML config file (defaults and CHUNKVAULT_* env when empty)")
	list := flag.Bool("list", false, "list files stored on the server")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [-list] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	dispatcher, rules, err := uploader.NewFromConfig(cfg.Client)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *list {
		return listFiles(ctx, dispatcher.API())
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}
	return upload(ctx, dispatcher, rules, flag.Args())
}

func upload(ctx context.Context, dispatcher *uploader.Dispatcher, rules uploader.ValidationRules, paths []string) int {
	files := make([]uploader.Source, 0, len(paths))
	for _, p := range paths {
		f, err := uploader.OpenFile(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		files = append(files, f)
	}

	task := uploader.NewTask(dispatcher, rules)
	results, err := task.Start(ctx, files, func(src uploader.Source, percent float64) {
		fmt.Printf("\r%-40s %6.1f%%", src.Name(), percent)
		if percent >= 100 {
			fmt.Println()
		}
	})
	if err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, uploader.FriendlyMessage(err))
		return 1
	}
	for _, item := range results {
		fmt.Printf("uploaded %s (%s)\n", item.Name, units.HumanSize(float64(item.Size)))
	}
	return 0
}

func listFiles(ctx context.Context, api *uploader.Client) int {
	files, err := api.ListFiles(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, uploader.FriendlyMessage(err))
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\n", f.Name, units.HumanSize(float64(f.Size)))
	}
	_ = w.Flush()
	return 0
}
