package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arjungandhi/addressbook"
	"github.com/arjungandhi/addressbook/internal/httpx"
)

var (
	configPath string
	dataDir    string
	format     string
	logLevel   string
	addr       string
)

var rootCmd = &cobra.Command{
	Use:          "addressbook",
	Short:        "store and serve contacts",
	SilenceUsage: true,
}

// app is what every command needs once configuration is resolved.
type app struct {
	cfg   *addressbook.Config
	log   *slog.Logger
	store *addressbook.Store
}

// setup layers config file, environment and flags, then prepares the data
// directory. A missing data directory ends the process with status 1.
func setup(cmd *cobra.Command, jsonLogs bool) (*app, error) {
	cfg, err := addressbook.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("addr") {
		cfg.Addr = addr
	}
	log := addressbook.NewLogger(os.Stderr, addressbook.ParseLevel(cfg.LogLevel), jsonLogs)

	opts := map[string][]string{}
	if flags.Changed(addressbook.DataDirOption) {
		opts[addressbook.DataDirOption] = []string{dataDir}
	}
	dir, err := addressbook.ResolveDataDir(opts, cfg.DataDir)
	if errors.Is(err, addressbook.ErrNoDataDir) {
		log.Warn("No data directory was provided", "hint", "pass --dataDir or set ADDRESSBOOK_DATA_DIR")
		os.Exit(1)
	}
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir
	if err := addressbook.InitDataDir(dir, log); err != nil {
		return nil, err
	}

	codec, err := addressbook.CodecFor(cfg.Format)
	if err != nil {
		return nil, err
	}
	store := addressbook.NewStore(dir, addressbook.WithCodec(codec), addressbook.WithLogger(log))
	return &app{cfg: cfg, log: log, store: store}, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the contact form and API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              a.cfg.Addr,
			Handler:           httpx.New(a.log, a.store, nil),
			ReadHeaderTimeout: 5 * time.Second,
		}
		errorCh := make(chan error, 1)
		go func() {
			a.log.Info("addressbook server starting", "addr", a.cfg.Addr, "dir", a.cfg.DataDir, "format", a.store.Codec().Name())
			errorCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error("graceful shutdown failed", "error", err)
			}
			a.log.Info("addressbook server stopped")
			return nil
		case err := <-errorCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		}
	},
}

var (
	addName  string
	addEmail string
	addPhone string
	addDOB   string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "add a contact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, false)
		if err != nil {
			return err
		}
		missing := addName == "" || addEmail == "" || addPhone == "" || addDOB == ""
		if missing && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := promptContact(); err != nil {
				return err
			}
		}
		c := addressbook.NewContact(strings.TrimSpace(addName), strings.TrimSpace(addEmail), strings.TrimSpace(addPhone), time.Time{})
		if addDOB != "" {
			dob, err := addressbook.ParseDate(addDOB)
			if err != nil {
				return err
			}
			c.SetDateOfBirth(dob)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := a.store.Save(c); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %s.\n", c.Name)
		fmt.Println(c.ID)
		return nil
	},
}

func promptContact() error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&addName).Validate(checkField("name")),
			huh.NewInput().Title("Email").Value(&addEmail).Validate(checkField("email")),
			huh.NewInput().Title("Phone number").Value(&addPhone).Validate(checkField("phoneNumber")),
			huh.NewInput().Title("Date of birth").Placeholder("YYYY-MM-DD").Value(&addDOB).Validate(checkField("dateOfBirth")),
		),
	)
	return form.Run()
}

// checkField validates a single form input with the same rules the store
// enforces, reporting only that field's message.
func checkField(field string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		c := &addressbook.Contact{}
		switch field {
		case "name":
			c.Name = s
		case "email":
			c.Email = s
		case "phoneNumber":
			c.PhoneNumber = s
		case "dateOfBirth":
			if s == "" {
				return errors.New("Date of Birth must be mandatory")
			}
			dob, err := addressbook.ParseDate(s)
			if err != nil {
				return err
			}
			c.SetDateOfBirth(dob)
		}
		var verrs addressbook.ValidationErrors
		if !errors.As(c.Validate(), &verrs) {
			return nil
		}
		if msg := verrs.For(field); msg != "" {
			return errors.New(msg)
		}
		if field == "dateOfBirth" {
			if msg := verrs.For("age"); msg != "" {
				return errors.New(msg)
			}
		}
		return nil
	}
}

var getOutputFormat string

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "show a contact by id",
	Args:  cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return idCompletions(cmd, toComplete), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, false)
		if err != nil {
			return err
		}
		c, err := a.store.Load(args[0])
		if errors.Is(err, addressbook.ErrNotFound) {
			return fmt.Errorf("contact not found: %s", args[0])
		}
		if err != nil {
			return err
		}
		switch getOutputFormat {
		case "json":
			out, err := addressbook.FormatContactJSON(c)
			if err != nil {
				return err
			}
			fmt.Println(out)
		case "vcf":
			data, err := addressbook.EncodeCard(addressbook.ContactCard(c))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
		default: // table
			fmt.Println(addressbook.FormatContact(c))
		}
		return nil
	},
}

var listOutputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list all contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, false)
		if err != nil {
			return err
		}
		list, err := a.store.LoadAll()
		if err != nil {
			return err
		}
		switch listOutputFormat {
		case "json":
			out, err := addressbook.FormatContactsJSON(list)
			if err != nil {
				return err
			}
			fmt.Println(out)
		case "vcf":
			data, err := addressbook.EncodeCards(list)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
		default: // table
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tBORN")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Email, c.PhoneNumber, c.BirthDate())
			}
			w.Flush()
		}
		return nil
	},
}

// idCompletions lists stored IDs without touching the data directory's
// permissions or exiting on missing configuration.
func idCompletions(cmd *cobra.Command, toComplete string) []string {
	cfg, err := addressbook.LoadConfig(configPath)
	if err != nil {
		return nil
	}
	opts := map[string][]string{}
	if cmd.Flags().Changed(addressbook.DataDirOption) {
		opts[addressbook.DataDirOption] = []string{dataDir}
	}
	dir, err := addressbook.ResolveDataDir(opts, cfg.DataDir)
	if err != nil {
		return nil
	}
	ids, err := addressbook.NewStore(dir).ListAll()
	if err != nil {
		return nil
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, toComplete) {
			matches = append(matches, id)
		}
	}
	return matches
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", addressbook.DefaultConfigPath(), "config file (YAML)")
	pf.StringVar(&dataDir, addressbook.DataDirOption, "", "directory holding one file per contact")
	pf.StringVar(&format, "format", addressbook.FormatLines, "storage format for new contacts (lines|vcard)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	addCmd.Flags().StringVar(&addName, "name", "", "full name")
	addCmd.Flags().StringVar(&addEmail, "email", "", "email address")
	addCmd.Flags().StringVar(&addPhone, "phone", "", "phone number")
	addCmd.Flags().StringVar(&addDOB, "dob", "", "date of birth (YYYY-MM-DD)")

	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "table", "output format (table|json|vcf)")
	getCmd.Flags().StringVarP(&getOutputFormat, "output", "o", "table", "output format (table|json|vcf)")
	outputFormats := []string{"table", "json", "vcf"}
	listCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return outputFormats, cobra.ShellCompDirectiveNoFileComp
	})
	getCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return outputFormats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(serveCmd, addCmd, getCmd, listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
