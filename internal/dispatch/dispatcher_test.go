package dispatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gmab/internal/config"
	"gmab/internal/dispatch"
	"gmab/internal/errdefs"
	"gmab/internal/logging"
	"gmab/internal/provisioning"
	"gmab/internal/sshkey"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func running(id, label string, age time.Duration, lifetime int) provisioning.Instance {
	return provisioning.Instance{
		ID:              id,
		Label:           label,
		IP:              "198.51.100.1",
		Status:          "running",
		State:           "running",
		Region:          "eu",
		Image:           "ubuntu",
		CreatedAt:       now.Add(-age),
		LifetimeMinutes: lifetime,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		General: config.General{
			SSHKeyPath:             "~/.ssh/id_ed25519.pub",
			DefaultLifetimeMinutes: 60,
			DefaultProvider:        config.ProviderHetzner,
		},
		Providers: map[string]config.ProviderConfig{
			config.ProviderHetzner: {APIKey: "h", DefaultRegion: "nbg1", DefaultImage: "ubuntu-22.04", DefaultType: "cpx11"},
			config.ProviderLinode:  {APIKey: "l", DefaultRegion: "nl-ams", DefaultImage: "linode/ubuntu22.04", DefaultType: "g6-nanode-1"},
			config.ProviderAWS:     {AccessKey: "a", SecretKey: "s", DefaultRegion: "eu-west-1", DefaultImage: "ami-1", DefaultType: "t3.micro"},
		},
	}
}

var _ = Describe("Dispatcher", func() {
	var (
		ctx       context.Context
		cfg       *config.Config
		hetzner   *FakeProvisioner
		linode    *FakeProvisioner
		registry  *FakeRegistry
		confirmer *FakeConfirmer
		out       *bytes.Buffer
		errOut    *bytes.Buffer
		keyErr    error
		d         *dispatch.Dispatcher
	)

	build := func() {
		d = dispatch.New(cfg, registry, confirmer, out, errOut,
			dispatch.WithClock(func() time.Time { return now }),
			dispatch.WithKeyReader(func(path string) (*sshkey.PublicKey, error) {
				if keyErr != nil {
					return nil, keyErr
				}
				return &sshkey.PublicKey{Path: path, Authorized: "ssh-ed25519 AAAAtest me", FingerprintSHA256: "SHA256:test"}, nil
			}),
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = testConfig()
		hetzner = NewFakeProvisioner(config.ProviderHetzner)
		linode = NewFakeProvisioner(config.ProviderLinode)
		registry = NewFakeRegistry(config.ProviderHetzner, hetzner, linode)
		confirmer = &FakeConfirmer{Answer: true}
		out = &bytes.Buffer{}
		errOut = &bytes.Buffer{}
		keyErr = nil
		build()
	})

	Describe("spawn", func() {
		It("uses the default provider and its configured defaults", func() {
			inst, err := d.Spawn(ctx, dispatch.SpawnOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Provider).To(Equal("hetzner"))

			Expect(hetzner.created).To(HaveLen(1))
			spec := hetzner.created[0]
			Expect(spec.Region).To(Equal("nbg1"))
			Expect(spec.Image).To(Equal("ubuntu-22.04"))
			Expect(spec.Type).To(Equal("cpx11"))
			Expect(spec.LifetimeMinutes).To(Equal(60))
			Expect(spec.CreatedAt).To(Equal(now))
			Expect(spec.SSHPublicKey).To(Equal("ssh-ed25519 AAAAtest me"))
			Expect(spec.SSHUser).To(Equal("root"))
			Expect(spec.Label).To(MatchRegexp(`^gmab-[0-9a-f]{12}$`))

			Expect(out.String()).To(ContainSubstring("Spawned 'hetzner' instance:"))
			Expect(out.String()).To(ContainSubstring("  ID: new-1"))
			Expect(out.String()).To(ContainSubstring("  Label: " + spec.Label))
			Expect(out.String()).To(ContainSubstring("Connect via: ssh root@203.0.113.1"))
		})

		It("applies CLI overrides over provider defaults", func() {
			lifetime := 15
			_, err := d.Spawn(ctx, dispatch.SpawnOptions{
				Provider:        config.ProviderLinode,
				Region:          "us-east",
				Image:           "linode/debian12",
				Type:            "g6-standard-1",
				LifetimeMinutes: &lifetime,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(hetzner.created).To(BeEmpty())
			Expect(linode.created).To(HaveLen(1))

			spec := linode.created[0]
			Expect(spec.Region).To(Equal("us-east"))
			Expect(spec.Image).To(Equal("linode/debian12"))
			Expect(spec.Type).To(Equal("g6-standard-1"))
			Expect(spec.LifetimeMinutes).To(Equal(15))
		})

		It("rejects a non-positive lifetime before calling the provider", func() {
			zero := 0
			_, err := d.Spawn(ctx, dispatch.SpawnOptions{LifetimeMinutes: &zero})
			Expect(errors.Is(err, errdefs.ErrValidation)).To(BeTrue())
			Expect(hetzner.created).To(BeEmpty())
		})

		It("rejects a missing image when the provider has no default", func() {
			pc := cfg.Providers[config.ProviderHetzner]
			pc.DefaultImage = ""
			cfg.Providers[config.ProviderHetzner] = pc

			_, err := d.Spawn(ctx, dispatch.SpawnOptions{})
			Expect(errors.Is(err, errdefs.ErrValidation)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("default_image"))
		})

		It("fails fast for an unconfigured provider", func() {
			_, err := d.Spawn(ctx, dispatch.SpawnOptions{Provider: config.ProviderGCP})
			Expect(errors.Is(err, errdefs.ErrConfigMissing)).To(BeTrue())
			Expect(errdefs.Hint(err)).To(ContainSubstring("gmab configure -p gcp"))
		})

		It("fails without a default provider", func() {
			registry.defaultProvider = ""
			_, err := d.Spawn(ctx, dispatch.SpawnOptions{})
			Expect(errors.Is(err, errdefs.ErrConfigMissing)).To(BeTrue())
		})

		It("reports an unreadable SSH key as missing configuration", func() {
			keyErr = errors.New("failed to read public key")
			build()
			_, err := d.Spawn(ctx, dispatch.SpawnOptions{})
			Expect(errors.Is(err, errdefs.ErrConfigMissing)).To(BeTrue())
			Expect(hetzner.created).To(BeEmpty())
		})
	})

	Describe("list", func() {
		It("flags an instance past its lifetime as expired", func() {
			hetzner.instances = []provisioning.Instance{running("42", "gmab-aaaaaaaaaaaa", 65*time.Minute, 60)}
			hetzner.instances[0].Provider = "hetzner"

			listings, err := d.List(ctx, dispatch.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listings).To(HaveLen(1))
			Expect(listings[0].Expired).To(BeTrue())
			Expect(listings[0].StatusLabel).To(Equal("running (expired)"))
			Expect(listings[0].TimeLeft).To(Equal("expired"))

			lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
			Expect(lines).To(HaveLen(3))
			Expect(lines[0]).To(HavePrefix("Provider   Instance ID            Label"))
			Expect(lines[1]).To(Equal(strings.Repeat("=", 152)))
			Expect(lines[2]).To(ContainSubstring("running (expired)"))
			Expect(lines[2]).To(HaveSuffix("expired"))
		})

		It("shows the remaining minutes of a live instance", func() {
			linode.instances = []provisioning.Instance{running("7", "gmab-bbbbbbbbbbbb", 20*time.Minute, 60)}
			linode.instances[0].Provider = "linode"

			_, err := d.List(ctx, dispatch.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("40m"))
			Expect(out.String()).NotTo(ContainSubstring("(expired)"))
		})

		It("sorts by provider and keeps API order within a provider", func() {
			hetzner.instances = []provisioning.Instance{
				running("h2", "gmab-h2", time.Minute, 60),
				running("h1", "gmab-h1", time.Minute, 60),
			}
			linode.instances = []provisioning.Instance{running("l1", "gmab-l1", time.Minute, 60)}
			for i := range hetzner.instances {
				hetzner.instances[i].Provider = "hetzner"
			}
			linode.instances[0].Provider = "linode"

			listings, err := d.List(ctx, dispatch.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			ids := []string{}
			for _, l := range listings {
				ids = append(ids, l.ID)
			}
			Expect(ids).To(Equal([]string{"h2", "h1", "l1"}))
		})

		It("lists only the selected provider", func() {
			hetzner.instances = []provisioning.Instance{running("h1", "gmab-h1", time.Minute, 60)}
			_, err := d.List(ctx, dispatch.ListOptions{Provider: config.ProviderLinode})
			Expect(err).NotTo(HaveOccurred())
			Expect(hetzner.listed).To(Equal(0))
			Expect(out.String()).To(Equal("No active instances found.\n"))
		})

		It("renders JSON", func() {
			hetzner.instances = []provisioning.Instance{running("42", "gmab-json", 65*time.Minute, 60)}

			_, err := d.List(ctx, dispatch.ListOptions{Format: "json"})
			Expect(err).NotTo(HaveOccurred())

			var decoded []map[string]any
			Expect(json.Unmarshal(out.Bytes(), &decoded)).To(Succeed())
			Expect(decoded).To(HaveLen(1))
			Expect(decoded[0]).To(HaveKeyWithValue("provider", "hetzner"))
			Expect(decoded[0]).To(HaveKeyWithValue("id", "42"))
			Expect(decoded[0]).To(HaveKeyWithValue("expired", true))
			Expect(decoded[0]).To(HaveKeyWithValue("time_left", "expired"))
		})

		It("renders an empty JSON array when nothing is running", func() {
			_, err := d.List(ctx, dispatch.ListOptions{Format: "json"})
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(out.String())).To(Equal("[]"))
		})

		It("renders YAML", func() {
			hetzner.instances = []provisioning.Instance{running("42", "gmab-yaml", 65*time.Minute, 60)}

			_, err := d.List(ctx, dispatch.ListOptions{Format: "yaml"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("label: gmab-yaml"))
			Expect(out.String()).To(ContainSubstring("status_label: running (expired)"))
		})

		It("rejects an unknown format", func() {
			_, err := d.List(ctx, dispatch.ListOptions{Format: "xml"})
			Expect(errors.Is(err, errdefs.ErrValidation)).To(BeTrue())
			Expect(hetzner.listed).To(Equal(0))
		})

		It("warns about a failing provider and still renders the others", func() {
			hetzner.listErr = errBoom
			linode.instances = []provisioning.Instance{running("l1", "gmab-l1", time.Minute, 60)}

			listings, err := d.List(ctx, dispatch.ListOptions{})
			Expect(err).To(HaveOccurred())
			Expect(listings).To(HaveLen(1))
			Expect(errOut.String()).To(ContainSubstring("Warning: failed to list instances from provider 'hetzner': boom"))
			Expect(out.String()).To(ContainSubstring("gmab-l1"))
		})

		It("warns about providers that could not be built", func() {
			registry.allErr = errors.Join(errdefs.ConfigMissing("", "provider 'aws' has no credentials"))

			_, err := d.List(ctx, dispatch.ListOptions{})
			Expect(err).To(HaveOccurred())
			Expect(errOut.String()).To(ContainSubstring("provider 'aws' has no credentials"))
		})
	})

	Describe("terminate", func() {
		BeforeEach(func() {
			hetzner.instances = []provisioning.Instance{
				running("100", "gmab-hhhhhhhhhhhh", 10*time.Minute, 60),
				running("101", "gmab-old-hetzner", 90*time.Minute, 60),
			}
			linode.instances = []provisioning.Instance{
				running("200", "gmab-llllllllllll", 10*time.Minute, 60),
			}
			for i := range hetzner.instances {
				hetzner.instances[i].Provider = "hetzner"
			}
			linode.instances[0].Provider = "linode"
		})

		It("deletes only the instance whose ID is on exactly one provider", func() {
			result, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"200"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Terminated).To(HaveLen(1))
			Expect(linode.Deleted()).To(Equal([]string{"200"}))
			Expect(hetzner.Deleted()).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("Successfully terminated 1 instance(s)."))
			Expect(confirmer.Questions).To(HaveLen(1))
		})

		It("matches labels case-sensitively", func() {
			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"GMAB-LLLLLLLLLLLL"}, Yes: true})
			Expect(errors.Is(err, errdefs.ErrNotFound)).To(BeTrue())
			Expect(linode.Deleted()).To(BeEmpty())

			_, err = d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"gmab-llllllllllll"}, Yes: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(linode.Deleted()).To(Equal([]string{"200"}))
		})

		It("reports no expired instances without deleting anything", func() {
			hetzner.instances = hetzner.instances[:1]

			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"expired"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("No expired instances found."))
			Expect(hetzner.Deleted()).To(BeEmpty())
			Expect(linode.Deleted()).To(BeEmpty())
			Expect(confirmer.Questions).To(BeEmpty())
		})

		It("sweeps only expired instances", func() {
			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"expired"}, Yes: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(hetzner.Deleted()).To(Equal([]string{"101"}))
			Expect(linode.Deleted()).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("The following expired instances will be terminated:"))
			Expect(out.String()).To(ContainSubstring("- 101 (hetzner: gmab-old-hetzner)"))
			Expect(out.String()).To(ContainSubstring("Successfully terminated 1 expired instance(s)."))
			Expect(confirmer.Questions).To(BeEmpty())
		})

		It("terminates everything with all", func() {
			result, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"all"}, Yes: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Terminated).To(HaveLen(3))
			Expect(out.String()).To(ContainSubstring("Successfully terminated 3 instance(s)."))
		})

		It("logs the targets as given and bounds the planned instance list", func() {
			core, logs := observer.New(zap.DebugLevel)
			DeferCleanup(logging.SetLogger(zap.New(core)))

			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"100", "200"}, Yes: true})
			Expect(err).NotTo(HaveOccurred())
			resolving := logs.FilterMessage("resolving terminate targets").All()
			Expect(resolving).To(HaveLen(1))
			Expect(resolving[0].ContextMap()["targets"]).To(Equal([]interface{}{"100", "200"}))

			for i := 0; i < 12; i++ {
				inst := running(fmt.Sprintf("3%02d", i), fmt.Sprintf("gmab-bulk%07d", i), time.Minute, 60)
				inst.Provider = "linode"
				linode.instances = append(linode.instances, inst)
			}
			_, err = d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"all"}, Yes: true})
			Expect(err).NotTo(HaveOccurred())
			planned := logs.FilterMessage("terminating instances").All()
			Expect(planned).To(HaveLen(2))
			fields := planned[1].ContextMap()
			Expect(fields["count"]).To(BeEquivalentTo(13))
			Expect(fields["instances"]).To(HaveLen(11))
			Expect(fields["instances"]).To(ContainElement("... and 3 more"))
		})

		It("limits all to the selected provider", func() {
			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"all"}, Provider: "linode", Yes: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(linode.Deleted()).To(Equal([]string{"200"}))
			Expect(hetzner.Deleted()).To(BeEmpty())
		})

		It("reports when there is nothing to terminate", func() {
			hetzner.instances = nil
			linode.instances = nil
			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"all"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(Equal("No active instances found.\n"))
		})

		It("does nothing when confirmation is declined", func() {
			confirmer.Answer = false
			result, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"all"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Cancelled).To(BeTrue())
			Expect(out.String()).To(ContainSubstring("Operation cancelled."))
			Expect(hetzner.Deleted()).To(BeEmpty())
			Expect(linode.Deleted()).To(BeEmpty())
		})

		It("refuses more than five explicit targets", func() {
			_, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"1", "2", "3", "4", "5", "6"}})
			Expect(errors.Is(err, errdefs.ErrValidation)).To(BeTrue())
			Expect(hetzner.listed).To(Equal(0))
		})

		It("requires at least one target", func() {
			_, err := d.Terminate(ctx, dispatch.TerminateOptions{})
			Expect(errors.Is(err, errdefs.ErrValidation)).To(BeTrue())
		})

		It("reports unknown targets as not found and still terminates the rest", func() {
			result, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"100", "missing"}, Yes: true})
			Expect(errors.Is(err, errdefs.ErrNotFound)).To(BeTrue())
			Expect(result.Terminated).To(HaveLen(1))
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Target).To(Equal("missing"))
			Expect(out.String()).To(ContainSubstring("Successfully terminated 1 instance(s)."))
			Expect(out.String()).To(ContainSubstring("Failed to terminate the following instances:\n- missing:"))
		})

		It("refuses an identifier that matches on two providers", func() {
			linode.instances = append(linode.instances, running("100", "gmab-dup", time.Minute, 60))
			linode.instances[1].Provider = "linode"

			result, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"100"}, Yes: true})
			Expect(err).To(HaveOccurred())
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Err.Error()).To(ContainSubstring("--provider"))
			Expect(hetzner.Deleted()).To(BeEmpty())
			Expect(linode.Deleted()).To(BeEmpty())

			_, err = d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"100"}, Provider: "linode", Yes: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(linode.Deleted()).To(Equal([]string{"100"}))
			Expect(hetzner.Deleted()).To(BeEmpty())
		})

		It("reports per-item delete failures and exits with an error", func() {
			hetzner.deleteErr["100"] = &errdefs.ProviderError{Provider: "hetzner", Op: "delete", Err: errBoom}

			result, err := d.Terminate(ctx, dispatch.TerminateOptions{Targets: []string{"100", "200"}, Yes: true})
			Expect(err).To(HaveOccurred())
			Expect(result.Terminated).To(HaveLen(1))
			Expect(result.Failed).To(HaveLen(1))
			Expect(out.String()).To(ContainSubstring("- 100: hetzner: delete: boom"))
			Expect(linode.Deleted()).To(Equal([]string{"200"}))
		})
	})
})
