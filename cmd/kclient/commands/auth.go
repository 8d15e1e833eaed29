package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewAuthCommand creates the auth command.
func NewAuthCommand() *cobra.Command {
	var (
		username string
		password string
		save     bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the API",
		Long:  "Exchange a username and password for an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if username == "" {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Username: ")
				username, _ = reader.ReadString('\n')
				username = strings.TrimSpace(username)
			}

			if password == "" {
				fmt.Print("Password: ")

				bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}

				password = string(bytePassword)

				fmt.Println()
			}

			client, err := CreateClient(ctx)
			if err != nil {
				return err
			}

			body, err := client.Authenticate(ctx, username, password)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			if !save {
				return Output(body)
			}

			token, err := TokenFromBody(body)
			if err != nil {
				return err
			}

			config := loadConfig()
			config.Token = token

			err = saveConfig(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(os.Stdout, "Token saved")

			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&save, "save", false, "store the returned token in the config file")

	return cmd
}

// TokenFromBody extracts the token from an authentication response, either
// at the top level or under "data".
func TokenFromBody(body any) (string, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return "", ErrNoToken
	}

	if token, ok := obj["token"].(string); ok && token != "" {
		return token, nil
	}

	if data, ok := obj["data"].(map[string]any); ok {
		if token, ok := data["token"].(string); ok && token != "" {
			return token, nil
		}
	}

	return "", ErrNoToken
}
