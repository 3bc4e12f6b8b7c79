// Package configure implements the interactive setup of config.json and
// providers.json, and their printing with secrets masked.
package configure

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"gmab/internal/config"
	"gmab/internal/errdefs"
	"gmab/internal/logging"
	"gmab/internal/provisioning"
	"gmab/internal/sshkey"
)

// TargetAll configures general settings and then every provider
const TargetAll = "all"

// Prompter reads answers; see prompt.Prompter
type Prompter interface {
	String(label, def string) (string, error)
	Int(label string, def int) (int, error)
	Choice(label string, choices []string, def string) (string, error)
	Confirm(question string, defaultYes bool) (bool, error)
	Secret(label, current string) (string, error)
}

// Configurator walks the user through the configuration files in cfg.Dir
type Configurator struct {
	cfg    *config.Config
	prompt Prompter
	out    io.Writer

	generateKey func(path string) (*sshkey.PublicKey, error)
}

// New creates a Configurator for cfg, which may be empty.
func New(cfg *config.Config, prompt Prompter, out io.Writer) *Configurator {
	return &Configurator{
		cfg:         cfg,
		prompt:      prompt,
		out:         out,
		generateKey: sshkey.Generate,
	}
}

// Run configures target: TargetAll (or empty) or a single provider name.
// A single provider configures general settings first when there are none.
func (c *Configurator) Run(target string) error {
	if target == "" {
		target = TargetAll
	}
	if target != TargetAll && !config.IsKnownProvider(target) {
		return errdefs.Validation("unknown provider '%s' (supported: %s)", target, strings.Join(config.ProviderNames, ", "))
	}

	fmt.Fprintf(c.out, "Using config directory: %s\n", c.cfg.Dir)

	if target == TargetAll || !c.cfg.Configured() {
		if err := c.general(); err != nil {
			return err
		}
	}

	if target == TargetAll {
		for _, name := range config.ProviderNames {
			ok, err := c.prompt.Confirm(fmt.Sprintf("\nDo you want to configure %s?", name), true)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := c.provider(name); err != nil {
				return err
			}
		}
	} else if err := c.provider(target); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}
	logging.Logger().Info("configuration saved",
		zap.String("dir", c.cfg.Dir),
		zap.Strings("providers", c.cfg.ProviderNames()))

	if err := c.validate(); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "\nConfiguration completed successfully!")
	fmt.Fprintf(c.out, "Config files are located in: %s\n", c.cfg.Dir)
	return nil
}

func (c *Configurator) general() error {
	fmt.Fprintln(c.out, "\nConfiguring general settings:")

	current := c.cfg.General
	def := config.DefaultGeneral
	if current.SSHKeyPath == "" {
		current.SSHKeyPath = def.SSHKeyPath
	}
	if current.DefaultLifetimeMinutes <= 0 {
		current.DefaultLifetimeMinutes = def.DefaultLifetimeMinutes
	}
	if current.DefaultProvider == "" {
		current.DefaultProvider = def.DefaultProvider
	}

	var (
		g   config.General
		err error
	)
	if g.SSHKeyPath, err = c.prompt.String("SSH public key path", current.SSHKeyPath); err != nil {
		return err
	}
	for {
		if g.DefaultLifetimeMinutes, err = c.prompt.Int("Default instance lifetime (minutes)", current.DefaultLifetimeMinutes); err != nil {
			return err
		}
		if g.DefaultLifetimeMinutes > 0 {
			break
		}
		fmt.Fprintln(c.out, "Error: lifetime must be a positive number of minutes.")
	}
	if g.DefaultProvider, err = c.prompt.Choice("Default provider", config.ProviderNames, current.DefaultProvider); err != nil {
		return err
	}

	c.cfg.General = g
	return nil
}

func (c *Configurator) provider(name string) error {
	fmt.Fprintf(c.out, "\nConfiguring %s provider:\n", name)

	pc, ok := c.cfg.Provider(name)
	if !ok {
		pc = config.ProviderDefaults[name]
	}

	for _, f := range fieldsFor(name) {
		var (
			v   string
			err error
		)
		if f.secret {
			v, err = c.prompt.Secret(f.label, f.get(&pc))
		} else {
			v, err = c.prompt.String(f.label, f.get(&pc))
		}
		if err != nil {
			return err
		}
		f.set(&pc, v)
	}

	c.cfg.Providers[name] = pc
	return nil
}

// validate prints warnings about a configuration that will not work yet
func (c *Configurator) validate() error {
	path, err := sshkey.ExpandPath(c.cfg.General.SSHKeyPath)
	if err != nil {
		fmt.Fprintf(c.out, "\nWarning: %v\n", err)
	} else if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(c.out, "\nWarning: SSH key not found at %s\n", path)
		gen, err := c.prompt.Confirm("Generate a new ed25519 key pair there?", true)
		if err != nil {
			return err
		}
		if gen {
			key, err := c.generateKey(path)
			if err != nil {
				fmt.Fprintf(c.out, "Warning: %v\n", err)
			} else {
				fmt.Fprintf(c.out, "Generated %s (%s)\n", key.Path, key.FingerprintSHA256)
			}
		}
	}

	def := c.cfg.General.DefaultProvider
	if def == "" {
		return nil
	}
	pc, ok := c.cfg.Provider(def)
	switch {
	case !ok:
		fmt.Fprintf(c.out, "\nWarning: Default provider '%s' is not configured\n", def)
	case !provisioning.HasCredentials(def, pc.ExpandEnv()):
		fmt.Fprintf(c.out, "\nWarning: Default provider '%s' is not fully configured (missing credentials)\n", def)
	}
	return nil
}
