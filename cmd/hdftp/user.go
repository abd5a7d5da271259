package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/config"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const userUsage = `Usage:
  hdftp user add [flags] <name>
  hdftp user delete [flags] <name>
  hdftp user list [flags]
  hdftp user passwd [flags] <name>

A running gateway reloads the account file on SIGHUP.
`

// anonymousName is the account used for anonymous logins; it has no password.
const anonymousName = "anonymous"

func runUser(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, userUsage)
		return errors.New("missing user subcommand")
	}

	switch args[0] {
	case "add":
		return runUserAdd(args[1:])
	case "delete", "rm":
		return runUserDelete(args[1:])
	case "list", "ls":
		return runUserList(args[1:])
	case "passwd":
		return runUserPasswd(args[1:])
	default:
		fmt.Fprint(os.Stderr, userUsage)
		return fmt.Errorf("unknown user subcommand %q", args[0])
	}
}

// userFlags are the account attributes settable from the command line.
type userFlags struct {
	password       string
	home           string
	group          string
	write          bool
	disabled       bool
	maxLogins      int
	maxLoginsPerIP int
	idleTime       int
	uploadRate     int
	downloadRate   int
	replication    int
}

func (f *userFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.password, "password", "", "Clear-text password (prompted when omitted)")
	fs.StringVar(&f.home, "home", "", "Home directory on the storage backend (required)")
	fs.StringVar(&f.group, "group", "", "Primary group (default: ftpgroup)")
	fs.BoolVar(&f.write, "write", false, "Allow uploads, renames and deletes")
	fs.BoolVar(&f.disabled, "disabled", false, "Create the account disabled")
	fs.IntVar(&f.maxLogins, "max-logins", 0, "Concurrent sessions (0 = unlimited)")
	fs.IntVar(&f.maxLoginsPerIP, "max-logins-per-ip", 0, "Concurrent sessions per client address (0 = unlimited)")
	fs.IntVar(&f.idleTime, "idle-time", 0, "Idle time in seconds (0 = server default)")
	fs.IntVar(&f.uploadRate, "upload-rate", 0, "Upload limit in bytes/s (0 = unlimited)")
	fs.IntVar(&f.downloadRate, "download-rate", 0, "Download limit in bytes/s (0 = unlimited)")
	fs.IntVar(&f.replication, "replication", 0, "Replication of uploaded files (0 = backend default)")
}

// buildAccount creates an account from flags; the password is set by the caller.
//
// Login and rate policies are attached only when a limit is given, so an
// account added without them carries the same authorities it would after a
// save/load round trip.
func buildAccount(name string, f *userFlags) (*account.Account, error) {
	if f.home == "" {
		return nil, errors.New("-home is required")
	}

	acc := account.New(name, f.home)
	if f.group != "" {
		acc.SetGroup(f.group)
	}
	acc.SetEnabled(!f.disabled)
	acc.SetMaxIdleTime(f.idleTime)
	acc.SetReplication(f.replication)

	authorities := []account.Authority{account.NewWriteAuthority(f.write)}
	if f.maxLogins > 0 || f.maxLoginsPerIP > 0 {
		authorities = append(authorities, account.NewConcurrentLoginAuthority(f.maxLogins, f.maxLoginsPerIP))
	}
	if f.uploadRate > 0 || f.downloadRate > 0 {
		authorities = append(authorities, account.NewTransferRateAuthority(f.uploadRate, f.downloadRate))
	}
	acc.SetAuthorities(authorities)

	if err := acc.Validate(); err != nil {
		return nil, err
	}
	return acc, nil
}

func openStore(configPath string) (*account.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return config.CreateAccountStore(&cfg.Accounts)
}

func runUserAdd(args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	force := fs.Bool("force", false, "Replace an existing account")
	var f userFlags
	f.register(fs)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("expected exactly one account name")
	}
	name := fs.Arg(0)

	acc, err := buildAccount(name, &f)
	if err != nil {
		return err
	}

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Dispose()

	exists, err := store.Exists(name)
	if err != nil {
		return err
	}
	if exists && !*force {
		return fmt.Errorf("account %q already exists (use -force to replace it)", name)
	}

	if name != anonymousName {
		password := f.password
		if password == "" {
			if password, err = promptPassword(os.Stdin, os.Stderr); err != nil {
				return err
			}
		}
		digest, err := store.Encryptor().Encrypt(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		acc.SetPassword(digest)
	}

	if err := store.Save(acc); err != nil {
		return err
	}
	fmt.Printf("Account %q saved to %s\n", name, store.File())
	return nil
}

func runUserDelete(args []string) error {
	fs := flag.NewFlagSet("user delete", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("expected exactly one account name")
	}

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Dispose()

	if err := store.Delete(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("Account %q deleted\n", fs.Arg(0))
	return nil
}

func runUserPasswd(args []string) error {
	fs := flag.NewFlagSet("user passwd", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	password := fs.String("password", "", "New clear-text password (prompted when omitted)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("expected exactly one account name")
	}

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Dispose()

	cached, err := store.Get(fs.Arg(0))
	if err != nil {
		return err
	}
	acc := cached.Clone()

	pw := *password
	if pw == "" {
		if pw, err = promptPassword(os.Stdin, os.Stderr); err != nil {
			return err
		}
	}
	digest, err := store.Encryptor().Encrypt(pw)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	acc.SetPassword(digest)

	if err := store.Save(acc); err != nil {
		return err
	}
	fmt.Printf("Password of %q updated\n", acc.Name())
	return nil
}

// userSummary is the listing view of an account. Password digests are
// never printed.
type userSummary struct {
	Name           string `yaml:"name"`
	Home           string `yaml:"home"`
	Group          string `yaml:"group"`
	Enabled        bool   `yaml:"enabled"`
	Write          bool   `yaml:"write"`
	MaxLogins      int    `yaml:"max_logins,omitempty"`
	MaxLoginsPerIP int    `yaml:"max_logins_per_ip,omitempty"`
	IdleTime       int    `yaml:"idle_time,omitempty"`
	UploadRate     int    `yaml:"upload_rate,omitempty"`
	DownloadRate   int    `yaml:"download_rate,omitempty"`
	Replication    int    `yaml:"replication,omitempty"`
}

func summarize(acc *account.Account) userSummary {
	login := acc.Authorize(account.Request{Kind: account.ConcurrentLoginRequest})
	rate := acc.Authorize(account.Request{Kind: account.TransferRateRequest})

	return userSummary{
		Name:           acc.Name(),
		Home:           acc.HomeDirectory(),
		Group:          acc.Group(),
		Enabled:        acc.Enabled(),
		Write:          acc.CanWrite(),
		MaxLogins:      login.MaxLogins,
		MaxLoginsPerIP: login.MaxLoginsPerSource,
		IdleTime:       acc.MaxIdleTime(),
		UploadRate:     rate.MaxUploadRate,
		DownloadRate:   rate.MaxDownloadRate,
		Replication:    acc.Replication(),
	}
}

func runUserList(args []string) error {
	fs := flag.NewFlagSet("user list", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	output := fs.String("o", "table", "Output format: table or yaml")
	_ = fs.Parse(args)

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Dispose()

	names, err := store.Names()
	if err != nil {
		return err
	}

	summaries := make([]userSummary, 0, len(names))
	for _, name := range names {
		acc, err := store.Get(name)
		if err != nil {
			return err
		}
		summaries = append(summaries, summarize(acc))
	}

	return printUsers(os.Stdout, summaries, *output)
}

func printUsers(w io.Writer, users []userSummary, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(users); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tHOME\tGROUP\tENABLED\tWRITE")
		for _, u := range users {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", u.Name, u.Home, u.Group, u.Enabled, u.Write)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (table or yaml)", format)
	}
}

// promptPassword reads a password twice without echo.
func promptPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to prompt for a password; use -password")
	}

	_, _ = fmt.Fprint(out, "Password: ")
	first, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	_, _ = fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", errors.New("password cannot be empty")
	}
	return string(first), nil
}
