package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/client"
	"github.com/minedient/elerp/internal/config"
	"github.com/minedient/elerp/internal/discovery"
	"github.com/minedient/elerp/internal/logging"
	"github.com/minedient/elerp/internal/protocol"
)

const usage = `usage: elerp-client [flags] <command> [command flags]

commands:
  test                       round-trip connection test
  version                    compare client and server versions
  data                       print the server's subjects/forms/classes
  recent-usage               print the latest usage records
  recent-uploads             print the latest uploaded worksheets
  unused -class <class>      list worksheets unused by a class
  upload -file <path> -form <idx> -subject <idx> [-desc <text>]
  register -worksheet <name> -class <class> [-teacher <name>] [-section <s>] [-sub <name>]
  total                      print the worksheet count

flags:
`

func main() {
	configPath := flag.String("config", "elerp-client.toml", "path to the client config file")
	development := flag.Bool("development", false, "use the development port pair and debug logging")
	server := flag.String("server", "", "skip discovery and connect to this host")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logging.Init("elerp-client", *development)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("config load failed")
		os.Exit(1)
	}

	udpPort, tcpPort := config.ProductionUDPPort, config.ProductionTCPPort
	if *development {
		udpPort, tcpPort = config.DevelopmentUDPPort, config.DevelopmentTCPPort
	}

	host := *server
	if host == "" {
		addr, err := client.Discover(udpPort, discovery.DefaultTimeout, log)
		if err != nil {
			log.Error().Err(err).Msg("discovery failed")
			os.Exit(1)
		}
		if addr == nil {
			log.Error().Msg("no server found")
			os.Exit(1)
		}
		host = addr.IP.String()
	}

	c, err := client.Connect(host, tcpPort, log)
	if err != nil {
		log.Error().Err(err).Msg("connect failed")
		os.Exit(1)
	}
	defer c.Close()

	if err := runCommand(c, cfg, *configPath, log, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("command failed")
		os.Exit(1)
	}
}

func runCommand(c *client.Client, cfg config.ClientConfig, configPath string, log zerolog.Logger, command string, args []string) error {
	switch command {
	case "test":
		return c.TestConnection()

	case "version":
		serverVersion, err := c.ServerVersion()
		if err != nil {
			return err
		}
		fmt.Printf("client %s, server %s\n", client.Version, serverVersion)
		switch client.CompareVersions(client.Version, serverVersion) {
		case client.VersionUpdate:
			fmt.Println("a newer client is available, please update")
		case client.VersionIncompatible:
			fmt.Println("the server is not compatible with this client, update required")
		default:
			fmt.Println("client is up to date")
		}
		return nil

	case "data":
		data, err := c.GlobalData()
		if err != nil {
			return err
		}
		fmt.Println("subjects:")
		for i, s := range data.Subjects {
			fmt.Printf("  %d  %s/%s\n", i, s.Name, s.CName)
		}
		fmt.Println("forms:")
		for i, f := range data.Forms {
			fmt.Printf("  %d  %s/%s\n", i, f.Name, f.CName)
		}
		fmt.Println("classes:")
		for _, cl := range data.Classes {
			fmt.Printf("  %s\n", cl)
		}
		return nil

	case "recent-usage":
		rows, err := c.RecentUsage()
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s  %s  %s  %s\n", r.UseDate, r.Class, r.Teacher, r.Worksheet)
		}
		return nil

	case "recent-uploads":
		rows, err := c.RecentUploaded()
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s  %s  %s  %s\n", r.LastUpdate, r.Form, r.Subject, r.Name)
		}
		return nil

	case "unused":
		fs := flag.NewFlagSet("unused", flag.ExitOnError)
		class := fs.String("class", "", "class name, e.g. 1A")
		if err := fs.Parse(args); err != nil {
			return err
		}
		rows, err := c.UnusedWorksheets(*class)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s  %s  %s  %q\n", r.Form, r.Subject, r.Name, r.Description)
		}
		return nil

	case "upload":
		fs := flag.NewFlagSet("upload", flag.ExitOnError)
		file := fs.String("file", "", "worksheet file to upload")
		form := fs.Int("form", -1, "form index from the data command")
		subject := fs.Int("subject", -1, "subject index from the data command")
		desc := fs.String("desc", "", "worksheet description")
		if err := fs.Parse(args); err != nil {
			return err
		}
		status, err := c.UploadWorksheet(*file, *form, *subject, *desc)
		if err != nil {
			return err
		}
		if status != protocol.StatusSuccess {
			return fmt.Errorf("server rejected upload: %s", string(status))
		}
		fmt.Println("upload successful")
		return nil

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		worksheet := fs.String("worksheet", "", "worksheet name")
		class := fs.String("class", "", "class name")
		teacher := fs.String("teacher", cfg.TeacherName, "teacher name")
		section := fs.String("section", "", "section identifier")
		sub := fs.String("sub", "", "substitute teacher")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *teacher == "" {
			return fmt.Errorf("a teacher name is required (flag -teacher or the config file)")
		}
		path, err := c.RegisterUsage(*worksheet, *class, *teacher, *section, *sub, cfg.DownloadDir)
		if err != nil {
			return err
		}
		fmt.Println("worksheet saved to", path)
		if *teacher != cfg.TeacherName {
			cfg.TeacherName = *teacher
			if err := config.SaveClientConfig(configPath, cfg); err != nil {
				log.Warn().Err(err).Msg("could not remember teacher name")
			}
		}
		return nil

	case "total":
		n, err := c.TotalWorksheets()
		if err != nil {
			return err
		}
		fmt.Println("total worksheets:", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
