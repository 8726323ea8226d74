package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// userCreateCmd represents the user create command
var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Long: `Create a user who can log in to the trainer.

The password is read from the TRAINER_USER_PASSWORD environment variable
or, when that is unset, from the first line of STDIN.

Example:
  trainerctl user create admin --superuser
  echo secret | trainerctl user create annotator --email a@example.com`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		superuser, _ := cmd.Flags().GetBool("superuser")

		password, err := readPassword(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
			os.Exit(1)
		}

		a, err := newApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer a.close()

		user, err := createUser(a.store, args[0], email, password, superuser)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created user '%s' (id %d)\n", user.Username, user.ID)
	},
}

func init() {
	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().StringP("email", "e", "", "Email address")
	userCreateCmd.Flags().Bool("superuser", false, "Grant administrator rights")
}

func readPassword(stdin io.Reader) (string, error) {
	if p := os.Getenv("TRAINER_USER_PASSWORD"); p != "" {
		return p, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}

func createUser(st store.Store, username, email, password string, superuser bool) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	hash, err := authn.HashPassword([]byte(password))
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsSuperuser:  superuser,
	}
	if err := st.Users().Create(user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("user '%s' already exists", username)
		}
		return nil, err
	}
	return user, nil
}
