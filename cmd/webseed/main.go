package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/log"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"

	"github.com/cenkalti/webseed/internal/logger"
	"github.com/cenkalti/webseed/internal/metainfo"
	"github.com/cenkalti/webseed/internal/storage/filestorage"
	"github.com/cenkalti/webseed/webseed"
)

var (
	cfg = webseed.DefaultConfig
)

func main() {
	app := cli.NewApp()
	app.Name = "webseed"
	app.Usage = "downloads a torrent from its HTTP seeds"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read config from `FILE`",
			Value: "~/.webseed.yaml",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:      "download",
			Usage:     "download torrent",
			ArgsUsage: "<torrent file>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "dest",
					Usage: "save files under `DIR`",
					Value: ".",
				},
				cli.StringSliceFlag{
					Name:  "url, u",
					Usage: "additional seed `URL`, may be given multiple times",
				},
				cli.DurationFlag{
					Name:  "stats",
					Usage: "print stats every `DURATION`",
					Value: 10 * time.Second,
				},
			},
			Action: handleDownload,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	if c.GlobalBool("debug") {
		logger.SetLevel(log.DEBUG)
	}
	configPath, err := homedir.Expand(c.GlobalString("config"))
	if err != nil {
		return err
	}
	cfg, err = webseed.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %s", err)
	}
	return nil
}

func handleDownload(c *cli.Context) error {
	path := c.Args().Get(0)
	if path == "" {
		return cli.NewExitError("first argument must be a torrent file", 1)
	}
	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		return err
	}
	mi, err := metainfo.New(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	sources := append(mi.URLList, c.StringSlice("url")...)
	sto, err := filestorage.New(c.String("dest"))
	if err != nil {
		return err
	}
	m, err := webseed.New(mi.Info, sources, sto, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	m.RequestAll()

	t := time.NewTicker(c.Duration("stats"))
	defer t.Stop()
	for {
		select {
		case a := <-m.Alerts():
			switch a.(type) {
			case webseed.TorrentFinishedAlert:
				log.Noticeln(a.String())
				printStats(m.Stats())
				return nil
			default:
				log.Warningln(a.String())
			}
		case <-t.C:
			printStats(m.Stats())
		}
	}
}

func printStats(s webseed.Stats) {
	b, err := prettyjson.Marshal(s)
	if err != nil {
		log.Errorln("cannot marshal stats:", err)
		return
	}
	fmt.Println(string(b))
}
