package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/models"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage registered repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a local repository for analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoAdd,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE:  runRepoList,
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <repository-id>",
	Short: "Remove a repository and its graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRemove,
}

var (
	repoName   string
	repoURL    string
	repoBranch string
)

func init() {
	repoAddCmd.Flags().StringVar(&repoName, "name", "", "display name (default: directory name)")
	repoAddCmd.Flags().StringVar(&repoURL, "url", "", "remote URL")
	repoAddCmd.Flags().StringVar(&repoBranch, "branch", "", "branch name")

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRemoveCmd)
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	store, err := openStore(config.ValidationContextQuery)
	if err != nil {
		return err
	}
	defer store.Close()

	name := repoName
	if name == "" {
		name = filepath.Base(path)
	}
	repo := &models.Repository{
		ID:        uuid.New().String(),
		Name:      name,
		Path:      path,
		URL:       repoURL,
		Branch:    repoBranch,
		CreatedAt: time.Now(),
	}
	if err := store.SaveRepository(cmd.Context(), repo); err != nil {
		return fmt.Errorf("failed to register repository: %w", err)
	}

	return printResult(repo, func() {
		fmt.Printf("Registered %s\n", repo.Name)
		fmt.Printf("  ID:   %s\n", repo.ID)
		fmt.Printf("  Path: %s\n", repo.Path)
		fmt.Printf("\nRun 'repograph analyze %s' to build its graph.\n", repo.ID)
	})
}

func runRepoList(cmd *cobra.Command, args []string) error {
	store, err := openStore(config.ValidationContextQuery)
	if err != nil {
		return err
	}
	defer store.Close()

	repos, err := store.ListRepositories(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}

	return printResult(repos, func() {
		if len(repos) == 0 {
			fmt.Println("No repositories registered. Use 'repograph repo add <path>'.")
			return
		}
		for _, r := range repos {
			analyzed := "never analyzed"
			if r.LastAnalyzed != nil {
				analyzed = "analyzed " + r.LastAnalyzed.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-24s %s (%s)\n", r.ID, r.Name, r.Path, analyzed)
		}
	})
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	store, err := openStore(config.ValidationContextQuery)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteRepository(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to remove repository %s: %w", args[0], err)
	}

	return printResult(map[string]string{"removed": args[0]}, func() {
		fmt.Printf("Removed repository %s\n", args[0])
	})
}
