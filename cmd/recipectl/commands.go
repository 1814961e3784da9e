package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
)

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one %s", name)
	}
	return args[0], nil
}

// current restores the cached analysis and returns it.
func (a *app) current(ctx context.Context) (*models.AnalysisResult, services.AnalysisState, error) {
	if _, err := a.analyzer.Restore(ctx); err != nil {
		return nil, services.AnalysisState{}, err
	}
	st := a.analyzer.State()
	if st.Phase != services.PhaseCompleted || st.Result == nil {
		return nil, st, services.ErrNoResult
	}
	return st.Result, st, nil
}

func (a *app) printRecipe(st services.AnalysisState) error {
	rendered := services.RenderResult(st.Result, st.JobID, st.VideoID, a.backend.FrameURL)
	return services.WriteText(a.out, rendered)
}

func runAnalyze(ctx context.Context, a *app, args []string) error {
	url, err := oneArg(args, "url")
	if err != nil {
		return err
	}

	done := make(chan services.AnalysisState, 1)
	unsubscribe := a.analyzer.OnChange(func(st services.AnalysisState) {
		if st.Phase == services.PhaseSubscribed {
			fmt.Fprintf(os.Stderr, "\r%3d%% %-40s", st.Progress, st.Message)
		}
		if st.Phase == services.PhaseCompleted || st.Phase == services.PhaseFailed {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := a.analyzer.Start(ctx, url); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case st := <-done:
		fmt.Fprintln(os.Stderr)
		if st.Phase == services.PhaseFailed {
			return fmt.Errorf("analysis failed: %s", st.Error)
		}
		return a.printRecipe(st)
	}
}

func runRestore(ctx context.Context, a *app, args []string) error {
	_, st, err := a.current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "job %s (%s)\n\n", st.JobID, st.URL)
	return a.printRecipe(st)
}

func runStatus(ctx context.Context, a *app, args []string) error {
	jobID, err := oneArg(args, "job id")
	if err != nil {
		return err
	}
	st, err := a.backend.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s %d%% %s\n", st.JobID, st.Status, services.NormalizeProgress(st.Progress), st.Message)
	return nil
}

func runPreview(ctx context.Context, a *app, args []string) error {
	url, err := oneArg(args, "url")
	if err != nil {
		return err
	}
	p, err := services.NewYouTubeService().Preview(ctx, url)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", p.Platform, p.VideoID)
	if p.Title != "" {
		fmt.Fprintf(a.out, "%s by %s (%s)\n", p.Title, p.Author, services.FormatTime(float64(p.DurationSeconds)))
	}
	if p.EmbedURL != "" {
		fmt.Fprintln(a.out, p.EmbedURL)
	}
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", services.FormatMarkdown, "markdown or pdf")
	dir := fs.String("o", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, st, err := a.current(ctx)
	if err != nil {
		return err
	}
	file, err := a.export.Export(ctx, st.JobID, res.Recipe.Title, *format)
	if err != nil {
		return err
	}

	path := filepath.Join(*dir, file.Filename)
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if file.Pages > 0 {
		fmt.Fprintf(a.out, "saved %s (%d pages)\n", path, file.Pages)
	} else {
		fmt.Fprintf(a.out, "saved %s\n", path)
	}
	return nil
}

func runSave(ctx context.Context, a *app, args []string) error {
	if err := a.auth.RequireLogin(); err != nil {
		return err
	}
	res, _, err := a.current(ctx)
	if err != nil {
		return err
	}
	resp, err := a.backend.SaveRecipe(ctx, res.Recipe)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (recipe %d)\n", resp.Message, resp.RecipeID)
	return nil
}

func runRecipes(ctx context.Context, a *app, args []string) error {
	if err := a.auth.RequireLogin(); err != nil {
		return err
	}
	recipes, err := a.backend.ListRecipes(ctx)
	if err != nil {
		return err
	}
	if len(recipes) == 0 {
		fmt.Fprintln(a.out, "no saved recipes")
		return nil
	}
	for _, r := range recipes {
		fmt.Fprintf(a.out, "%4d  %s", r.RecipeID, r.Title)
		if r.CreatedAt != "" {
			fmt.Fprintf(a.out, "  (%s)", r.CreatedAt)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.auth.Login(ctx, models.LoginRequest{Email: *email, Password: *password}, "/")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", firstNonEmpty(res.User.Nickname, res.User.Email))
	return nil
}

func runSignup(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	var form models.SignupForm
	fs.StringVar(&form.Email, "email", "", "account email")
	fs.StringVar(&form.Password, "password", "", "password")
	fs.StringVar(&form.PasswordConfirm, "confirm", "", "password again")
	fs.StringVar(&form.Nickname, "nickname", "", "optional display name")
	fs.BoolVar(&form.AgreeTerms, "agree", false, "agree to the terms")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := a.auth.Signup(ctx, form); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed up, now run `recipectl login`")
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func runMe(ctx context.Context, a *app, args []string) error {
	user, err := a.auth.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", user.Email, user.Nickname)
	return nil
}

const chatHelp = `commands:
  /done          mark the current step complete
  /step <n>      jump to step n
  /photo <path>  attach a photo to the next message
  /more          show older messages
  /quit          leave
anything else is sent to the assistant`

func runChat(ctx context.Context, a *app, args []string) error {
	res, _, err := a.current(ctx)
	if err != nil {
		return err
	}

	chat := services.NewChatSession(a.backend, a.cfg.ChatPageSize, nil)
	if err := chat.StartSession(ctx, res.Recipe); err != nil {
		return err
	}
	printMessages(a.out, chat.History().Messages)
	fmt.Fprintln(a.out, chatHelp)

	return chatLoop(ctx, a.out, os.Stdin, chat)
}

func chatLoop(ctx context.Context, out io.Writer, in io.Reader, chat *services.ChatSession) error {
	shown := len(chat.Messages())
	scanner := bufio.NewScanner(in)

	for {
		snap := chat.Snapshot()
		fmt.Fprintf(out, "\n[step %d/%d, %d%%] > ", snap.CurrentStep, snap.TotalSteps, snap.Progress)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/done":
			_, err = chat.CompleteStep(ctx)
		case strings.HasPrefix(line, "/step "):
			n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/step ")))
			if convErr != nil {
				err = fmt.Errorf("step must be a number")
				break
			}
			err = chat.SelectStep(n)
		case strings.HasPrefix(line, "/photo "):
			var data []byte
			data, err = os.ReadFile(strings.TrimSpace(strings.TrimPrefix(line, "/photo ")))
			if err == nil {
				err = chat.AttachImage(data, "")
			}
			if err == nil {
				fmt.Fprintln(out, "photo attached")
				continue
			}
		case line == "/more":
			view := chat.LoadOlder(0)
			printMessages(out, view.Messages[:view.Prepended])
			continue
		default:
			_, err = chat.SendMessage(ctx, line)
		}

		if err != nil {
			fmt.Fprintf(out, "! %s\n", describe(err))
		}

		msgs := chat.Messages()
		printMessages(out, msgs[shown:])
		shown = len(msgs)
	}
}

func printMessages(out io.Writer, msgs []models.ChatMessage) {
	for _, m := range msgs {
		who := "assistant"
		if m.Role == models.RoleUser {
			who = "you"
		}
		content := m.Content
		if m.ImageURL != "" {
			content += " [photo]"
		}
		fmt.Fprintf(out, "%s: %s\n", who, content)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
