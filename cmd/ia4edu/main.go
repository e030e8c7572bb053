package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KrolinaTF/IA4Edu/ai"
	"github.com/KrolinaTF/IA4Edu/ai/grouping"
	"github.com/KrolinaTF/IA4Edu/ai/session"
	"github.com/KrolinaTF/IA4Edu/internal/profile"
	"github.com/KrolinaTF/IA4Edu/internal/version"
	"github.com/KrolinaTF/IA4Edu/store"
	"github.com/KrolinaTF/IA4Edu/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "ia4edu",
	Short: "Inclusive activity design assistant: turns a free-text request into a structured, personalized activity plan for a real classroom.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, assistant, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer st.Close()
		return runDesignLoop(ctx, assistant, st)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <petición>",
	Short: "Rank the activity library against a request without starting a session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, assistant, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer st.Close()

		request := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")
		refs, err := assistant.Retrieval.FindTopK(ctx, request, topK)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			refs = assistant.Retrieval.SearchKeywords(request, topK)
		}
		for i, ref := range refs {
			fmt.Printf("%d. %.3f  %s (%s, %d min)\n",
				i+1, ref.Score, ref.Record.Title, ref.Record.Mode(), ref.Record.DurationMinutes)
		}
		if len(refs) == 0 {
			fmt.Println("Sin resultados.")
		}
		return nil
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Build and print a grouping for the loaded roster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, _, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer st.Close()

		modeFlag, _ := cmd.Flags().GetString("mode")
		size, _ := cmd.Flags().GetInt("size")
		subject, _ := cmd.Flags().GetString("subject")

		optimizer := grouping.NewOptimizer()
		assignment, err := optimizer.Assign(st.Roster(), grouping.PhaseExecution,
			store.ParseGroupingMode(modeFlag), size, subject)
		if err != nil {
			return err
		}
		printAssignment(assignment, st.Roster())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("ia4edu %s\n", version.GetCurrentVersion(viper.GetString("mode")))
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "dev", `runtime mode, "prod" or "dev"`)
	rootCmd.PersistentFlags().String("data", "", "data directory (cache db, saved activities)")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("roster", "", "path to the classroom roster JSON file")
	rootCmd.PersistentFlags().String("library", "", "directory with activity library JSON files")

	for _, key := range []string{"mode", "data", "driver", "dsn", "roster", "library"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("ia4edu")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	searchCmd.Flags().Int("top-k", 3, "number of references to return")
	groupsCmd.Flags().String("mode", "pareja", "grouping mode (individual, pareja, grupo)")
	groupsCmd.Flags().Int("size", 4, "group size for grupo mode")
	groupsCmd.Flags().String("subject", "", "subject steering partner choice")

	rootCmd.AddCommand(searchCmd, groupsCmd, versionCmd)
}

// bootstrap builds the profile, opens the store, loads classroom data and
// assembles the assistant.
func bootstrap() (context.Context, *ai.Assistant, *store.Store, error) {
	instanceProfile := &profile.Profile{
		Mode:       viper.GetString("mode"),
		Data:       viper.GetString("data"),
		Driver:     viper.GetString("driver"),
		DSN:        viper.GetString("dsn"),
		RosterPath: viper.GetString("roster"),
		LibraryDir: viper.GetString("library"),
		Version:    version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "profile")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		cancel()
		return nil, nil, nil, errors.Wrap(err, "db driver")
	}
	st := store.New(dbDriver, instanceProfile)
	if err := st.Migrate(ctx); err != nil {
		cancel()
		return nil, nil, nil, errors.Wrap(err, "migrate")
	}
	if err := st.LoadClassroom(); err != nil {
		cancel()
		return nil, nil, nil, errors.Wrap(err, "classroom data")
	}

	assistant, err := ai.New(instanceProfile, st)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, assistant, st, nil
}

// runDesignLoop is the interactive session: one request, then feedback
// rounds until the teacher accepts with "ok" or quits with "salir".
func runDesignLoop(ctx context.Context, assistant *ai.Assistant, st *store.Store) error {
	if st.Roster() == nil {
		return errors.New("no roster configured, set --roster or IA4EDU_ROSTER_PATH")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	fmt.Printf("ia4edu — aula de %d estudiantes, %d actividades de referencia.\n",
		len(st.Roster().Learners), st.Library().Size())
	if cached, err := st.CountEmbeddings(ctx); err == nil && cached > 0 {
		fmt.Printf("Caché de embeddings: %d entradas.\n", cached)
	}
	fmt.Println("Describe la actividad que necesitas (o \"salir\"):")
	fmt.Print("> ")

	if !scanner.Scan() {
		return scanner.Err()
	}
	request := strings.TrimSpace(scanner.Text())
	if request == "" || strings.EqualFold(request, "salir") {
		return nil
	}

	sess, err := assistant.Sessions.Start(ctx, request)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	printDraft(sess)

	for sess.State == session.StateAwaitingFeedback {
		fmt.Println("\nComentario (\"ok\" para finalizar, \"salir\" para abandonar):")
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case strings.EqualFold(input, "salir"):
			fmt.Println("Sesión abandonada, nada guardado.")
			return nil
		case strings.EqualFold(input, "ok"), strings.EqualFold(input, "vale"):
			path, err := assistant.Sessions.Finalize(sess)
			if err != nil {
				return errors.Wrap(err, "finalizing")
			}
			fmt.Printf("Actividad guardada en %s\n", path)
			return nil
		case input == "":
			continue
		}

		record, err := assistant.Sessions.Refine(ctx, sess, input)
		if errors.Is(err, session.ErrRoundLimit) {
			fmt.Println("Límite de rondas alcanzado. Escribe \"ok\" para guardar la versión actual o \"salir\".")
			continue
		}
		if err != nil {
			return errors.Wrap(err, "refining")
		}
		if record.Warning != "" {
			fmt.Printf("Aviso: %s\n", record.Warning)
		}
		printDraft(sess)
	}
	return nil
}

func printDraft(sess *session.Session) {
	fmt.Println()
	if sess.FromFallback {
		fmt.Println("(actividad de plantilla: el modelo de generación no estaba disponible)")
	}
	fmt.Print(sess.Draft.Markdown())
	if sess.Assignment != nil && len(sess.Assignment.Groups) > 0 {
		fmt.Printf("Grupos: %d (%s)\n", len(sess.Assignment.Groups), sess.Mode)
	}
}

func printAssignment(assignment *grouping.Assignment, roster *store.Roster) {
	for _, g := range assignment.Groups {
		names := make([]string, 0, len(g.Members))
		for _, id := range g.Members {
			if l := roster.FindLearner(id); l != nil {
				names = append(names, l.Name)
			} else {
				names = append(names, id)
			}
		}
		fmt.Printf("%s: %s\n", g.ID, strings.Join(names, ", "))
	}
	if assignment.Relaxed {
		fmt.Println("Nota: más estudiantes con apoyo que compañeros disponibles; algunos comparten grupo.")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
