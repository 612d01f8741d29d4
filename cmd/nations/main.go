package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "nations/internal/cli"
	"nations/internal/config"

	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	env := config.LoadCLIFromEnv()
	_, envBaseSet := os.LookupEnv("NATIONS_API_BASE_URL")

	root := &cobra.Command{
		Use:          "nations",
		Short:        "Nations economy operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(
		newConfigureCmd(env),
		newLogoutCmd(),
		newShopCmd(env, envBaseSet),
		newBalanceCmd(env, envBaseSet),
		newLeaderboardCmd(env, envBaseSet),
		newCountriesCmd(env, envBaseSet),
		newCreateCmd(env, envBaseSet),
		newBuyCmd(env, envBaseSet),
		newTransferCmd(env, envBaseSet),
		newAdminCmd(env, envBaseSet),
	)

	if err := root.Execute(); err != nil {
		printError(describeError(err))
		os.Exit(1)
	}
}

func newClient(env config.CLIConfig, envBaseSet bool) (*cl.Client, error) {
	saved, err := cl.LoadProfile()
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	p := cl.Resolve(saved, env, envBaseSet)
	if p.APIToken == "" {
		return nil, errors.New("no API token: run `nations configure` or set NATIONS_API_TOKEN")
	}
	return cl.NewClient(p.APIBaseURL, p), nil
}

func newConfigureCmd(env config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Save API address, token and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := promptOptional(fmt.Sprintf("API base URL [%s]", env.APIBaseURL))
			if err != nil {
				return err
			}
			if base == "" {
				base = env.APIBaseURL
			}
			token, err := promptRequired("Service token")
			if err != nil {
				return err
			}
			owner, err := promptRequired("Owner id")
			if err != nil {
				return err
			}
			caps, err := promptOptional("Capabilities (admin,create)")
			if err != nil {
				return err
			}
			p := cl.Profile{
				APIBaseURL: strings.TrimRight(base, "/"),
				APIToken:   token,
				OwnerID:    owner,
			}
			for _, c := range strings.Split(caps, ",") {
				if c = strings.TrimSpace(c); c != "" {
					p.Capabilities = append(p.Capabilities, c)
				}
			}
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			printSuccess("Profile saved.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearProfile(); err != nil {
				return err
			}
			printSuccess("Profile cleared.")
			return nil
		},
	}
}

func newShopCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	return &cobra.Command{
		Use:   "shop",
		Short: "List items for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			items, err := client.Shop(ctx)
			if err != nil {
				return err
			}
			renderShop(items)
			return nil
		},
	}
}

func newBalanceCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [owner_id]",
		Short: "Show your country, or another owner's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			owner := ""
			if len(args) > 0 {
				owner = strings.TrimSpace(args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			country, err := client.Balance(ctx, owner)
			if err != nil {
				return err
			}
			renderCountry(country)
			return nil
		},
	}
}

func newLeaderboardCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	var n int
	lb := &cobra.Command{
		Use:   "leaderboard",
		Short: "Richest countries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			rows, err := client.Leaderboard(ctx, n)
			if err != nil {
				return err
			}
			renderLeaderboard(rows)
			return nil
		},
	}
	lb.Flags().IntVarP(&n, "top", "n", 10, "number of rows")
	return lb
}

func newCountriesCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List every country (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			all, err := client.Countries(ctx)
			if err != nil {
				return err
			}
			renderCountries(all)
			return nil
		},
	}
}

func newCreateCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	return &cobra.Command{
		Use:   "create [name...]",
		Short: "Found a country",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				var err error
				if name, err = promptRequired("Country name"); err != nil {
					return err
				}
			}
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			country, err := client.CreateCountry(ctx, name)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Country %s created with %s coins and %s base income.",
				country.Name, comma(country.Wallet), comma(country.Income)))
			return nil
		},
	}
}

func newBuyCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <item...>",
		Short: "Buy an item from the shop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			p, err := client.Buy(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s. Income increased by %s.", p.Item.ID, comma(p.Item.Income)))
			renderCountry(p.Country)
			return nil
		},
	}
}

func newTransferCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <owner_id> [amount]",
		Short: "Send coins to another country",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := int64FromArgOrPrompt(args, 1, "Amount")
			if err != nil {
				return err
			}
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			res, err := client.Transfer(ctx, strings.TrimSpace(args[0]), amount)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Transferred %s coins from %s to %s.", comma(res.Amount), res.Sender.Name, res.Receiver.Name))
			return nil
		},
	}
}

func newAdminCmd(env config.CLIConfig, envBaseSet bool) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (requires admin capability)",
	}
	admin.AddCommand(&cobra.Command{
		Use:   "set <owner_id> <wallet|income> <value>",
		Short: "Overwrite a country's wallet or income",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseInt(strings.TrimSpace(args[2]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[2])
			}
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			country, err := client.SetField(ctx, args[0], args[1], value)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Set %s's %s to %s.", country.Name, strings.ToLower(args[1]), comma(value)))
			return nil
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "delete <owner_id>",
		Short: "Delete a country",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := client.DeleteCountry(ctx, args[0]); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Deleted country owned by %s.", args[0]))
			return nil
		},
	})
	for _, op := range []string{"add", "remove"} {
		admin.AddCommand(newAdjustCmd(env, envBaseSet, op))
	}
	return admin
}

func newAdjustCmd(env config.CLIConfig, envBaseSet bool, op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <owner_id> [amount]",
		Short: strings.ToUpper(op[:1]) + op[1:] + " coins on a country's wallet",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := int64FromArgOrPrompt(args, 1, "Amount")
			if err != nil {
				return err
			}
			client, err := newClient(env, envBaseSet)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			country, err := client.AdjustBalance(ctx, args[0], op, amount)
			if err != nil {
				return err
			}
			verb := "Added"
			if op == "remove" {
				verb = "Removed"
			}
			printSuccess(fmt.Sprintf("%s %s coins. %s now holds %s.", verb, comma(amount), country.Name, comma(country.Wallet)))
			return nil
		},
	}
}

func describeError(err error) string {
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case "NotFound":
			return "Not found: " + apiErr.Message
		case "Unauthorized":
			return "Not allowed: " + apiErr.Message
		case "InsufficientFunds":
			return "Not enough money: " + apiErr.Message
		case "StorageFailure":
			return "Ledger busy, try again: " + apiErr.Message
		}
		return apiErr.Error()
	}
	return "error: " + err.Error()
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}
