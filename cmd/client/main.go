package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/socket-file-server/internal/client"
	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
	"git.uuxo.net/uuxo/socket-file-server/internal/utils"
)

var log = logrus.New()

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  list                       List stored files.
  upload <path> [name]       Upload a local file, optionally under a different name.
  download <name> [dest]     Download a file to dest (default: ./<name>).
  preview <name>             Print the first bytes of a file.
  delete <name>              Delete a file.

Flags:
`, filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func main() {
	var (
		addr      string
		username  string
		secret    string
		token     string
		chunkSize string
	)
	flag.StringVar(&addr, "addr", "localhost:9999", "Server address host:port.")
	flag.StringVar(&username, "user", "", "Username for login.")
	flag.StringVar(&secret, "secret", "", "Secret for login.")
	flag.StringVar(&token, "token", "", "Session token instead of username/secret.")
	flag.StringVar(&chunkSize, "chunk-size", "64KB", "Upload chunk size.")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	chunk, err := utils.ParseSize(chunkSize)
	if err != nil {
		log.Fatalf("Invalid chunk size %q: %v", chunkSize, err)
	}

	c, err := client.Dial(addr, int(chunk))
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	defer c.Close()

	switch {
	case token != "":
		err = c.LoginToken(token)
	case username != "":
		err = c.Login(username, secret)
	default:
		log.Fatal("Either -user/-secret or -token is required")
	}
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	if err := run(c, args); err != nil {
		if se, ok := err.(*protocol.ServerError); ok {
			log.Fatalf("Server rejected %s: [%s] %s", args[0], se.ErrKind, se.Message)
		}
		log.Fatalf("Command %s failed: %v", args[0], err)
	}
}

func run(c *client.Client, args []string) error {
	switch cmd := args[0]; cmd {
	case "list":
		records, err := c.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No files stored.")
			return nil
		}
		for _, rec := range records {
			mod := time.Unix(rec.ModTime, 0).Format("2006-01-02 15:04:05")
			fmt.Printf("%-40s %10s  %s\n", rec.Name, utils.FormatBytes(rec.Size), mod)
		}
		return nil

	case "upload":
		if len(args) < 2 {
			return fmt.Errorf("upload requires a file path")
		}
		start := time.Now()
		var n int64
		var err error
		if len(args) > 2 {
			// Upload under a different remote name.
			var f *os.File
			f, err = os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			info, statErr := f.Stat()
			if statErr != nil {
				return statErr
			}
			n, err = c.Upload(args[2], f, info.Size())
		} else {
			n, err = c.UploadFile(args[1])
		}
		if err != nil {
			return err
		}
		log.Infof("Uploaded %s (%s) in %s", filepath.Base(args[1]), utils.FormatBytes(n), time.Since(start).Round(time.Millisecond))
		return nil

	case "download":
		if len(args) < 2 {
			return fmt.Errorf("download requires a file name")
		}
		dest := args[1]
		if len(args) > 2 {
			dest = args[2]
		}
		start := time.Now()
		n, err := c.DownloadFile(args[1], dest)
		if err != nil {
			return err
		}
		log.Infof("Downloaded %s (%s) in %s", args[1], utils.FormatBytes(n), time.Since(start).Round(time.Millisecond))
		return nil

	case "preview":
		if len(args) < 2 {
			return fmt.Errorf("preview requires a file name")
		}
		preview, err := c.Preview(args[1])
		if err != nil {
			return err
		}
		os.Stdout.Write(preview)
		if len(preview) == 0 || preview[len(preview)-1] != '\n' {
			fmt.Println()
		}
		return nil

	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("delete requires a file name")
		}
		if err := c.Delete(args[1]); err != nil {
			return err
		}
		log.Infof("Deleted %s", args[1])
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
