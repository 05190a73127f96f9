package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codemist/webai-bridge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the API bridge configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for backend cookie credentials.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("WebAI Bridge Configuration Setup")
	color.Yellow("Cookie values come from your browser's developer tools while logged in.")

	reader := bufio.NewReader(os.Stdin)

	cfg := &config.Config{
		Host: config.DefaultHost,
		Port: config.DefaultPort,
	}

	fmt.Print("\nGemini __Secure-1PSID cookie (empty to skip): ")
	psid, _ := reader.ReadString('\n')
	psid = strings.TrimSpace(psid)

	if psid != "" {
		fmt.Print("Gemini __Secure-1PSIDTS cookie: ")
		psidts, _ := reader.ReadString('\n')

		cfg.Backends = append(cfg.Backends, config.Backend{
			Name:          "gemini",
			Secure1PSID:   psid,
			Secure1PSIDTS: strings.TrimSpace(psidts),
		})
	}

	fmt.Print("Claude sessionKey cookie (empty to skip): ")
	sessionKey, _ := reader.ReadString('\n')
	sessionKey = strings.TrimSpace(sessionKey)

	if sessionKey != "" {
		fmt.Print("Claude model (empty for default): ")
		model, _ := reader.ReadString('\n')

		cfg.Backends = append(cfg.Backends, config.Backend{
			Name:       "claude",
			SessionKey: sessionKey,
			Model:      strings.TrimSpace(model),
		})
	}

	if len(cfg.Backends) > 0 {
		fmt.Printf("Default backend [%s]: ", cfg.Backends[0].Name)
		defaultBackend, _ := reader.ReadString('\n')
		defaultBackend = strings.TrimSpace(defaultBackend)

		if defaultBackend == "" {
			defaultBackend = cfg.Backends[0].Name
		}

		cfg.DefaultBackend = defaultBackend
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the bridge with: webai-bridge start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'webai-bridge config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "Default", cfg.DefaultBackend)
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nBackends:")
	for _, backend := range cfg.Backends {
		fmt.Printf("  - Name: %s\n", backend.Name)

		if backend.SessionKey != "" {
			fmt.Printf("    Session Key: %s\n", maskString(backend.SessionKey))
		}
		if backend.Secure1PSID != "" {
			fmt.Printf("    1PSID: %s\n", maskString(backend.Secure1PSID))
		}
		if backend.Secure1PSIDTS != "" {
			fmt.Printf("    1PSIDTS: %s\n", maskString(backend.Secure1PSIDTS))
		}
		if backend.Model != "" {
			fmt.Printf("    Model: %s\n", backend.Model)
		}

		fmt.Println()
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var problems []string

	if len(cfg.Backends) == 0 {
		problems = append(problems, "no backends configured")
	}

	for i, backend := range cfg.Backends {
		switch backend.Name {
		case "claude":
			if backend.SessionKey == "" {
				problems = append(problems, fmt.Sprintf("backend %d (claude): session_key is required", i))
			}
		case "gemini":
			if backend.Secure1PSID == "" {
				problems = append(problems, fmt.Sprintf("backend %d (gemini): secure_1psid is required", i))
			}
		case "":
			problems = append(problems, fmt.Sprintf("backend %d: name is required", i))
		default:
			problems = append(problems, fmt.Sprintf("backend %d: unknown backend %q", i, backend.Name))
		}
	}

	if cfg.DefaultBackend != "" && cfg.Backend(cfg.DefaultBackend) == nil {
		problems = append(problems, fmt.Sprintf("default backend %q is not configured", cfg.DefaultBackend))
	}

	if len(problems) > 0 {
		color.Red("Configuration validation failed:")
		for _, problem := range problems {
			fmt.Printf("  - %s\n", problem)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
