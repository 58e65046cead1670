package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/database"
	"github.com/paralegal-agent/paralegal/database/model"
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/util/random"
	"github.com/paralegal-agent/paralegal/web"
	"github.com/paralegal-agent/paralegal/web/service"

	"github.com/goccy/go-json"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"
)

func logLevel() logging.Level {
	switch config.GetLogLevel() {
	case config.Debug:
		return logging.DEBUG
	case config.Info:
		return logging.INFO
	case config.Notice:
		return logging.NOTICE
	case config.Warn:
		return logging.WARNING
	case config.Error:
		return logging.ERROR
	default:
		log.Fatal("unknown log level:", config.GetLogLevel())
	}
	return logging.INFO
}

func openDB() (*database.DB, error) {
	return database.OpenPath(config.GetDBPath())
}

func runWebServer() {
	log.Printf("%v %v", config.GetName(), config.GetVersion())
	logger.InitLogger(logLevel())
	defer logger.CloseLogger()

	serverCfg, err := config.GetServerConfig()
	if err != nil {
		log.Fatal(err)
	}
	tokenCfg, err := config.GetTokenConfig()
	if err != nil {
		log.Fatal(err)
	}

	db, err := openDB()
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warning("close db err:", err)
		}
	}()

	server := web.NewServer(web.Options{
		DB:        db,
		Server:    serverCfg,
		Tokens:    tokenCfg,
		Bootstrap: config.GetBootstrap(),
		Mailer:    service.LogMailSender{},
	})
	if err := server.Start(); err != nil {
		logger.Error("start server err:", err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	if err := server.Stop(); err != nil {
		logger.Warning("stop server err:", err)
	}
}

func withUsers(fn func(users *service.UserService) error) error {
	logger.InitConsoleLogger(logLevel())
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(service.NewUserService(db))
}

func withTokens(fn func(tokens *service.TokenService) error) error {
	logger.InitConsoleLogger(logLevel())
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(service.NewTokenService(db))
}

func addUser(username, password, email string, admin bool) error {
	generated := password == ""
	if generated {
		password = random.Seq(16)
	}
	return withUsers(func(users *service.UserService) error {
		if err := users.Upsert(username, password, admin); err != nil {
			return err
		}
		if email != "" {
			if err := users.SetEmail(username, email); err != nil {
				return err
			}
		}
		fmt.Printf("saved user %s (admin=%v)\n", username, admin)
		if generated {
			fmt.Println("password:", password)
		}
		return nil
	})
}

func listUsers(asJSON bool) error {
	return withUsers(func(users *service.UserService) error {
		list, err := users.List()
		if err != nil {
			return err
		}
		if asJSON {
			out, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		for _, u := range list {
			fmt.Printf("%-6d %-24s admin=%-5v %s\n", u.Id, u.Username, u.IsAdmin, u.Email)
		}
		return nil
	})
}

func main() {
	var envFile string

	var rootCmd = &cobra.Command{
		Use:           config.GetName(),
		Short:         "Paralegal assistant panel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "load environment variables from this file if it exists")

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the web server",
		Run: func(cmd *cobra.Command, args []string) {
			runWebServer()
		},
	}

	var userCmd = &cobra.Command{
		Use:   "user",
		Short: "Manage stored users",
	}

	var userAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Create or replace a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			admin, _ := cmd.Flags().GetBool("admin")
			email, _ := cmd.Flags().GetString("email")
			return addUser(username, password, email, admin)
		},
	}
	userAddCmd.Flags().String("username", "", "username")
	userAddCmd.Flags().String("password", "", "password (generated and printed if empty)")
	userAddCmd.Flags().Bool("admin", false, "grant admin rights")
	userAddCmd.Flags().String("email", "", "address for password-reset mails")
	_ = userAddCmd.MarkFlagRequired("username")

	var userListCmd = &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return listUsers(asJSON)
		},
	}
	userListCmd.Flags().Bool("json", false, "print as JSON")

	var userDeleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Delete a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			return withUsers(func(users *service.UserService) error {
				if err := users.Delete(username); err != nil {
					return err
				}
				fmt.Println("deleted user", username)
				return nil
			})
		},
	}
	userDeleteCmd.Flags().String("username", "", "username")
	_ = userDeleteCmd.MarkFlagRequired("username")

	var userPasswdCmd = &cobra.Command{
		Use:   "passwd",
		Short: "Set the password of an existing user, keeping its admin flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			return withUsers(func(users *service.UserService) error {
				if err := users.SetPassword(username, password); err != nil {
					return err
				}
				fmt.Println("updated password of", username)
				return nil
			})
		},
	}
	userPasswdCmd.Flags().String("username", "", "username")
	userPasswdCmd.Flags().String("password", "", "new password")
	_ = userPasswdCmd.MarkFlagRequired("username")
	_ = userPasswdCmd.MarkFlagRequired("password")

	var userAdminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Grant or revoke admin rights",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			revoke, _ := cmd.Flags().GetBool("revoke")
			return withUsers(func(users *service.UserService) error {
				if err := users.SetAdmin(username, !revoke); err != nil {
					return err
				}
				fmt.Printf("%s admin=%v\n", username, !revoke)
				return nil
			})
		},
	}
	userAdminCmd.Flags().String("username", "", "username")
	userAdminCmd.Flags().Bool("revoke", false, "revoke instead of grant")
	_ = userAdminCmd.MarkFlagRequired("username")

	var userEmailCmd = &cobra.Command{
		Use:   "email",
		Short: "Set the password-reset address of an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			return withUsers(func(users *service.UserService) error {
				if err := users.SetEmail(username, email); err != nil {
					return err
				}
				fmt.Printf("%s email=%q\n", username, email)
				return nil
			})
		},
	}
	userEmailCmd.Flags().String("username", "", "username")
	userEmailCmd.Flags().String("email", "", "address, empty to disable self-service resets")
	_ = userEmailCmd.MarkFlagRequired("username")

	userCmd.AddCommand(userAddCmd, userListCmd, userDeleteCmd, userPasswdCmd, userAdminCmd, userEmailCmd)

	var tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Manage invite and reset tokens",
	}

	var tokenIssueCmd = &cobra.Command{
		Use:   "issue",
		Short: "Issue a token and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			tokenType, _ := cmd.Flags().GetString("type")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			return withTokens(func(tokens *service.TokenService) error {
				tok, err := tokens.Issue(username, model.TokenType(tokenType), ttl)
				if err != nil {
					return err
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	tokenIssueCmd.Flags().String("username", "", "token owner")
	tokenIssueCmd.Flags().String("type", string(model.TokenInvite), "invite or password_reset")
	tokenIssueCmd.Flags().Duration("ttl", 72*time.Hour, "token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("username")

	var tokenPurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete expired tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTokens(func(tokens *service.TokenService) error {
				n, err := tokens.PurgeExpired()
				if err != nil {
					return err
				}
				fmt.Printf("purged %d expired tokens\n", n)
				return nil
			})
		},
	}

	tokenCmd.AddCommand(tokenIssueCmd, tokenPurgeCmd)

	rootCmd.AddCommand(runCmd, userCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
