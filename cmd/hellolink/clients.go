package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellolink/internal/config"
	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
	"github.com/dropDatabas3/hellolink/internal/security/password"
	"github.com/dropDatabas3/hellolink/internal/security/token"
	"github.com/dropDatabas3/hellolink/internal/store/memory"
	"github.com/dropDatabas3/hellolink/internal/store/pg"
)

// withStore abre el store configurado, corre fn y cierra.
func withStore(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	var store repository.Store
	switch cfg.Storage.Driver {
	case "postgres":
		store, err = pg.Connect(ctx, cfg.Storage.DSN, cfg.Storage.Postgres.MaxOpenConns, cfg.Storage.Postgres.MaxIdleConns)
		if err != nil {
			return err
		}
	case "memory":
		store = memory.New()
	default:
		return fmt.Errorf("storage driver desconocido: %q", cfg.Storage.Driver)
	}
	defer store.Close()
	return fn(ctx, store)
}

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Administración de clients registrados",
	}
	cmd.AddCommand(
		clientsCreateCmd(),
		clientsRotateSecretCmd(),
		clientsSetEnabledCmd("enable", true),
		clientsSetEnabledCmd("disable", false),
		clientsListFieldCmd("add-redirect-uri", "agrega un redirect URI a la allowlist", "redirect-uri", addRedirect),
		clientsListFieldCmd("remove-redirect-uri", "quita un redirect URI de la allowlist", "redirect-uri", removeRedirect),
		clientsListFieldCmd("add-allowed-origin", "agrega un Origin a la allowlist de CORS", "allowed-origin", addOrigin),
		clientsListFieldCmd("remove-allowed-origin", "quita un Origin de la allowlist de CORS", "allowed-origin", removeOrigin),
	)
	return cmd
}

// printSecretOnce imprime el par client_id/secret. El secret en claro no
// se persiste: esta es la única oportunidad de copiarlo.
func printSecretOnce(clientID, secret string) {
	out, _ := json.MarshalIndent(map[string]string{
		"client_id":     clientID,
		"client_secret": secret,
	}, "", "  ")
	fmt.Println(string(out))
}

func newSecret() (plain, phc string, err error) {
	plain, err = token.GenerateOpaqueToken(32)
	if err != nil {
		return "", "", err
	}
	phc, err = password.Hash(password.Default, plain)
	if err != nil {
		return "", "", err
	}
	return plain, phc, nil
}

func clientsCreateCmd() *cobra.Command {
	var (
		redirectURIs   []string
		allowedOrigins []string
		appName        string
		emailSubject   string
		buttonColor    string
		logoPath       string
	)
	cmd := &cobra.Command{
		Use:   "create <client-id>",
		Short: "Registra un client y emite su secret (se muestra una sola vez)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(redirectURIs) == 0 {
				return fmt.Errorf("se requiere al menos un --redirect-uri")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				secret, hash, err := newSecret()
				if err != nil {
					return err
				}
				c := &domain.Client{
					ClientID:         args[0],
					SecretHash:       hash,
					RedirectURIs:     redirectURIs,
					AllowedOrigins:   allowedOrigins,
					Enabled:          true,
					AppName:          appName,
					EmailSubject:     emailSubject,
					EmailButtonColor: buttonColor,
				}
				if logoPath != "" {
					logo, err := os.ReadFile(logoPath)
					if err != nil {
						return fmt.Errorf("leer logo: %w", err)
					}
					c.EmailLogoPNG = logo
				}
				if err := store.Clients().Create(ctx, c); err != nil {
					return err
				}
				printSecretOnce(c.ClientID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&redirectURIs, "redirect-uri", nil, "redirect URI permitido (repetible)")
	cmd.Flags().StringArrayVar(&allowedOrigins, "allowed-origin", nil, "Origin permitido para CORS (repetible)")
	cmd.Flags().StringVar(&appName, "app-name", "", "nombre de la app para el email")
	cmd.Flags().StringVar(&emailSubject, "email-subject", "", "subject custom del email")
	cmd.Flags().StringVar(&buttonColor, "email-button-color", "", "color del botón del email (hex)")
	cmd.Flags().StringVar(&logoPath, "email-logo", "", "ruta a un PNG para el logo del email")
	return cmd
}

func clientsRotateSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret <client-id>",
		Short: "Rota el secret del client (el anterior deja de valer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				c, err := store.Clients().Get(ctx, args[0])
				if err != nil {
					return err
				}
				secret, hash, err := newSecret()
				if err != nil {
					return err
				}
				c.SecretHash = hash
				if err := store.Clients().Update(ctx, c); err != nil {
					return err
				}
				printSecretOnce(c.ClientID, secret)
				return nil
			})
		},
	}
}

func clientsSetEnabledCmd(use string, enabled bool) *cobra.Command {
	short := "Deshabilita un client (rechaza start y exchange)"
	if enabled {
		short = "Habilita un client"
	}
	return &cobra.Command{
		Use:   use + " <client-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				c, err := store.Clients().Get(ctx, args[0])
				if err != nil {
					return err
				}
				c.Enabled = enabled
				return store.Clients().Update(ctx, c)
			})
		},
	}
}

type fieldMutator func(c *domain.Client, value string)

func addRedirect(c *domain.Client, v string)    { c.RedirectURIs = appendUnique(c.RedirectURIs, v) }
func removeRedirect(c *domain.Client, v string) { c.RedirectURIs = removeValue(c.RedirectURIs, v) }
func addOrigin(c *domain.Client, v string)      { c.AllowedOrigins = appendUnique(c.AllowedOrigins, v) }
func removeOrigin(c *domain.Client, v string)   { c.AllowedOrigins = removeValue(c.AllowedOrigins, v) }

func clientsListFieldCmd(use, short, noun string, mutate fieldMutator) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <client-id> <" + noun + ">",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				c, err := store.Clients().Get(ctx, args[0])
				if err != nil {
					return err
				}
				mutate(c, args[1])
				return store.Clients().Update(ctx, c)
			})
		},
	}
}

func appendUnique(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

func removeValue(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
