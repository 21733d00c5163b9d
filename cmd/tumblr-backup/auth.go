package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"tumblrbackup/pkg/auth"
	"tumblrbackup/pkg/backup"
	"tumblrbackup/pkg/config"
	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/oauth"
	"tumblrbackup/pkg/tumblr"
	"tumblrbackup/pkg/ui"
)

var (
	manualLogin bool
	verifyAuth  bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the OAuth tokens used to reach your account",
	Long: `Manage the OAuth access token pair used to call the Tumblr API.

Tokens are stored according to auth.store:
  - file       JSON file at auth.token_file (default)
  - keyring    system keychain
  - encrypted  AES-GCM encrypted file at auth.token_file

TUMBLR_ACCESS_TOKEN and TUMBLR_ACCESS_TOKEN_SECRET are read as a fallback.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize this app and store the resulting tokens",
	Long: `Run the three-legged OAuth 1.0a flow:

  1. A request token is obtained with your consumer key and secret
  2. You open the printed URL and allow access
  3. You paste the oauth_verifier (or the whole redirect URL)
  4. The request token is exchanged for an access token, which is stored

With --manual you paste an existing token and secret instead.`,
	Example: `  tumblr-backup auth login
  tumblr-backup auth login --manual`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var statusAuthCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which token store holds tokens",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored tokens",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(statusAuthCmd)
	authCmd.AddCommand(logoutCmd)

	loginCmd.Flags().BoolVar(&manualLogin, "manual", false, "paste an existing token and secret")
	statusAuthCmd.Flags().BoolVar(&verifyAuth, "verify", false, "check the tokens against the API")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Tumblr.ConsumerKey == "" || cfg.Tumblr.ConsumerSecret == "" {
		return apperrors.NewAuthError("TUMBLR_CONSUMER_KEY and TUMBLR_CONSUMER_SECRET must be set", nil)
	}

	manager, err := auth.NewManager(&cfg.Auth)
	if err != nil {
		return err
	}
	prompter := ui.NewPrompter()

	var tokens *auth.TokenPair
	if manualLogin {
		tokens, err = prompter.PromptTokens(ctx)
		if err != nil {
			return fmt.Errorf("failed to read tokens: %w", err)
		}
	} else {
		tokens, err = threeLegged(cmd, cfg, prompter)
		if err != nil {
			return err
		}
	}

	ui.Println("\nChecking tokens...")
	if _, err := verifyTokens(cmd, cfg, tokens); err != nil {
		return err
	}

	if err := manager.Save(tokens); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Tokens stored in %s store", manager.Primary().Name()))
	return nil
}

func threeLegged(cmd *cobra.Command, cfg *config.Config, prompter *ui.Prompter) (*auth.TokenPair, error) {
	ctx := cmd.Context()
	exchange := oauth.NewExchange(
		&http.Client{Timeout: cfg.Tumblr.RequestTimeout},
		cfg.Tumblr.OAuthBaseURL,
		cfg.Tumblr.ConsumerKey,
		cfg.Tumblr.ConsumerSecret,
		cfg.Tumblr.CallbackURL,
		nil,
	)

	request, err := exchange.RequestToken(ctx)
	if err != nil {
		return nil, err
	}

	ui.PrintHighlight("\nOpen this URL in your browser and allow access:")
	ui.Println(exchange.AuthorizeURL(request.Token))
	ui.Println("\nYou will be redirected to " + cfg.Tumblr.CallbackURL + ".")
	ui.Println("The page may fail to load; copy the oauth_verifier value or the whole URL from the address bar.")

	input, err := prompter.Ask("\noauth_verifier: ")
	if err != nil {
		return nil, err
	}
	verifier := parseVerifier(input)
	if verifier == "" {
		return nil, apperrors.NewAuthError("no verifier entered", ui.ErrNoInput)
	}

	access, err := exchange.AccessToken(ctx, request, verifier)
	if err != nil {
		return nil, err
	}
	return &auth.TokenPair{AccessToken: access.Token, AccessTokenSecret: access.Secret}, nil
}

// parseVerifier accepts a bare verifier or the full callback URL
func parseVerifier(input string) string {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "oauth_verifier=") {
		if u, err := url.Parse(input); err == nil {
			if v := u.Query().Get("oauth_verifier"); v != "" {
				return strings.TrimSuffix(v, "#_=_")
			}
		}
		if q, err := url.ParseQuery(input[strings.Index(input, "oauth_verifier="):]); err == nil {
			return strings.TrimSuffix(q.Get("oauth_verifier"), "#_=_")
		}
	}
	return input
}

// verifyTokens runs the identity check and returns the account name
func verifyTokens(cmd *cobra.Command, cfg *config.Config, tokens *auth.TokenPair) (string, error) {
	factory := backup.TumblrClientFactory(cfg, nil, nil)
	client, err := factory(credentialsFor(cfg, tokens))
	if err != nil {
		return "", err
	}
	info, err := client.Info(cmd.Context())
	if err != nil {
		return "", fmt.Errorf("tokens were rejected: %w", err)
	}
	ui.PrintInfo("Account", info.User.Name)
	ui.PrintInfo("Blogs", strings.Join(info.BlogNames(), ", "))
	return info.User.Name, nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	manager, err := auth.NewManager(&cfg.Auth)
	if err != nil {
		return err
	}

	ui.PrintInfo("Configured store", manager.Primary().Name())
	tokens, err := manager.Load()
	if errors.Is(err, auth.ErrTokensNotFound) {
		ui.PrintWarning("No tokens stored; run 'tumblr-backup auth login'")
		return nil
	}
	if err != nil {
		return err
	}

	ui.PrintInfo("Loaded from", manager.Source())
	ui.PrintInfo("Access token", auth.Mask(tokens.AccessToken))
	ui.PrintInfo("Token secret", auth.Mask(tokens.AccessTokenSecret))

	if verifyAuth {
		if _, err := verifyTokens(cmd, cfg, tokens); err != nil {
			return err
		}
		ui.PrintSuccess("Tokens are valid")
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	manager, err := auth.NewManager(&cfg.Auth)
	if err != nil {
		return err
	}
	if err := manager.Delete(); err != nil {
		return err
	}
	ui.PrintSuccess("Stored tokens removed")
	return nil
}

func credentialsFor(cfg *config.Config, tokens *auth.TokenPair) tumblr.Credentials {
	return tumblr.Credentials{
		ConsumerKey:       cfg.Tumblr.ConsumerKey,
		ConsumerSecret:    cfg.Tumblr.ConsumerSecret,
		AccessToken:       tokens.AccessToken,
		AccessTokenSecret: tokens.AccessTokenSecret,
	}
}
