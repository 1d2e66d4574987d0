// Package cli implements the hiver command-line client.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
	"github.com/joshua-takyi/hiver/internal/session"
)

const usage = `usage: hiver <command> [flags] [args]

commands:
  hives        list public hives (-category filters the discover window)
  hive <id>    show one hive
  create-hive  create a hive
  buzz         list public buzz
  post <text>  post a buzz
  rsvp <id> <going|interested|not_going>
  profile      show or update your profile
  whoami       print the signed-in identity
  login        sign in and print a refresh token for HIVER_REFRESH_TOKEN
  schema       print the supabase tables and policies for the RSVP mode
`

// App is everything a command needs. AccessToken may be nil when the
// gateway does not act under the user's session. RefreshToken, when set,
// restores a session before falling back to Email and Password.
type App struct {
	Provider    session.Provider
	Sessions    *session.Store
	AccessToken func() string

	Hives    *services.HiveService
	RSVP     *services.RSVPService
	RSVPMode services.RSVPMode
	Buzz     *services.BuzzService
	Profiles *services.ProfileService

	Email        string
	Password     string
	RefreshToken string
}

// renewer is implemented by providers that can keep a session alive across runs.
type renewer interface {
	Refresh(ctx context.Context) error
	Restore(ctx context.Context, refreshToken string) (*session.Identity, error)
}

type anonymousResolver interface {
	ResolveAnonymous()
}

type tokenSource interface {
	Tokens() session.Tokens
}

// ErrSignInRequired is returned by commands that need an identity when no
// credentials were supplied.
var ErrSignInRequired = errors.New("sign in required: set HIVER_REFRESH_TOKEN or HIVER_EMAIL and HIVER_PASSWORD")

// Run dispatches args[0] to its command.
func Run(ctx context.Context, app *App, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "hives":
		return app.listHives(ctx, rest, out)
	case "hive":
		return app.showHive(ctx, rest, out)
	case "create-hive":
		return app.createHive(ctx, rest, out)
	case "buzz":
		return app.listBuzz(ctx, rest, out)
	case "post":
		return app.postBuzz(ctx, rest, out)
	case "rsvp":
		return app.rsvp(ctx, rest, out)
	case "profile":
		return app.profile(ctx, rest, out)
	case "whoami":
		return app.whoami(ctx, out)
	case "login":
		return app.login(ctx, out)
	case "schema":
		_, err := fmt.Fprint(out, models.SupabaseSchema(app.RSVPMode != services.RSVPModeAppend))
		return err
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// signIn establishes the session once. A held session is refreshed, a
// stored refresh token is tried before the password, and with no
// credentials at all the session resolves as anonymous. The identity is nil
// in that case unless required is set.
func (a *App) signIn(ctx context.Context, required bool) (context.Context, *session.Identity, error) {
	r, canRenew := a.Provider.(renewer)
	id := a.Sessions.Current()
	if id != nil && canRenew {
		if err := r.Refresh(ctx); err != nil {
			return ctx, nil, err
		}
		id = a.Sessions.Current()
	}
	if id == nil && a.RefreshToken != "" && canRenew {
		_, err := r.Restore(ctx, a.RefreshToken)
		if err != nil && (a.Email == "" || a.Password == "") {
			return ctx, nil, err
		}
		if err == nil {
			if id, err = a.Sessions.Await(ctx); err != nil {
				return ctx, nil, err
			}
		}
	}
	if id == nil && a.Email != "" && a.Password != "" {
		if _, err := a.Provider.SignIn(ctx, a.Email, a.Password); err != nil {
			return ctx, nil, err
		}
		var err error
		if id, err = a.Sessions.Await(ctx); err != nil {
			return ctx, nil, err
		}
	}
	if id == nil {
		if ar, ok := a.Provider.(anonymousResolver); ok {
			ar.ResolveAnonymous()
		}
		if required {
			return ctx, nil, ErrSignInRequired
		}
		return ctx, nil, nil
	}
	if a.AccessToken != nil {
		ctx = models.ContextWithAccessToken(ctx, a.AccessToken())
	}
	return ctx, id, nil
}

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (a *App) listHives(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("hives", out)
	limit := fs.Int("limit", services.DefaultHiveLimit, "maximum hives to show")
	category := fs.String("category", "", "only hives in this category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, _, err := a.signIn(ctx, false)
	if err != nil {
		return err
	}

	var hives []*models.HiveView
	if *category != "" {
		hives, err = a.Hives.Discover(ctx, *category, *limit)
	} else {
		hives, err = a.Hives.ListHives(ctx, *limit)
	}
	if err != nil {
		return err
	}
	if len(hives) == 0 {
		fmt.Fprintln(out, "no hives yet")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWHEN\tWHERE\tHOST")
	for _, h := range hives {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", h.ID, h.Name, h.Date.Format(time.RFC822), h.Location, h.HostUsername)
	}
	return w.Flush()
}

func (a *App) showHive(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: hiver hive <id>")
	}
	ctx, viewer, err := a.signIn(ctx, false)
	if err != nil {
		return err
	}
	h, err := a.Hives.GetHiveDetail(ctx, args[0], viewer)
	if err != nil {
		return err
	}
	printHive(out, h)
	return nil
}

func printHive(out io.Writer, h *models.HiveView) {
	fmt.Fprintf(out, "%s (%s)\n", h.Name, h.ID)
	fmt.Fprintf(out, "  when:      %s (%s)\n", h.Date.Format(time.RFC1123), h.Recurring)
	fmt.Fprintf(out, "  where:     %s\n", h.Location)
	fmt.Fprintf(out, "  category:  %s\n", h.Category)
	fmt.Fprintf(out, "  host:      %s\n", h.HostUsername)
	fmt.Fprintf(out, "  attendees: %d\n", h.AttendeeCount)
	if h.ViewerStatus != "" {
		fmt.Fprintf(out, "  you:       %s\n", h.ViewerStatus)
	}
	if h.ExternalLink != nil {
		fmt.Fprintf(out, "  link:      %s\n", *h.ExternalLink)
	}
	fmt.Fprintf(out, "\n%s\n", h.Description)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (a *App) createHive(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("create-hive", out)
	var in services.CreateHiveInput
	var cover, link string
	fs.StringVar(&in.Name, "name", "", "hive name")
	fs.StringVar(&in.Description, "description", "", "what the hive is about")
	fs.StringVar(&in.Location, "location", "", "where it happens")
	fs.StringVar(&in.Date, "date", "", "YYYY-MM-DD or RFC3339")
	fs.StringVar(&in.Time, "time", "", "HH:MM, used with a plain date")
	fs.StringVar(&in.Category, "category", "", "category")
	fs.StringVar(&in.Visibility, "visibility", string(models.VisibilityPublic), "public, private or connections")
	fs.StringVar(&in.Recurring, "recurring", models.RecurringOneTime, "one-time, daily, weekly or monthly")
	fs.StringVar(&cover, "cover", "", "cover image URL")
	fs.StringVar(&link, "link", "", "external link")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.CoverImage, in.ExternalLink = optional(cover), optional(link)

	ctx, host, err := a.signIn(ctx, true)
	if err != nil {
		return err
	}
	hive, err := a.Hives.CreateHive(ctx, host, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created hive %s\n", hive.ID)
	return nil
}

func (a *App) listBuzz(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("buzz", out)
	limit := fs.Int("limit", services.FeedBuzzLimit, "maximum posts to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, _, err := a.signIn(ctx, false)
	if err != nil {
		return err
	}
	posts, err := a.Buzz.ListPublicBuzz(ctx, *limit)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Fprintln(out, "no buzz yet")
		return nil
	}
	for _, b := range posts {
		author := b.AuthorUsername
		if author == "" {
			author = "someone"
		}
		fmt.Fprintf(out, "@%s  %s\n  %s\n", author, b.CreatedAt.Format(time.RFC822), b.Description)
	}
	return nil
}

func (a *App) postBuzz(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("post", out)
	var in services.PostBuzzInput
	var location string
	fs.StringVar(&in.Visibility, "visibility", string(models.VisibilityPublic), "public, private or connections")
	fs.StringVar(&location, "location", "", "where you are")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Description = strings.Join(fs.Args(), " ")
	in.Location = optional(location)

	ctx, author, err := a.signIn(ctx, true)
	if err != nil {
		return err
	}
	buzz, err := a.Buzz.PostBuzz(ctx, author, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "posted buzz %s\n", buzz.ID)
	return nil
}

func (a *App) rsvp(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: hiver rsvp <id> <going|interested|not_going>")
	}
	ctx, user, err := a.signIn(ctx, true)
	if err != nil {
		return err
	}
	att, err := a.RSVP.RSVP(ctx, user, args[0], models.RSVPStatus(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "you are %s for %s\n", att.Status, att.HiveID)
	return nil
}

func (a *App) profile(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("profile", out)
	username := fs.String("username", "", "new username")
	displayName := fs.String("display-name", "", "new display name")
	bio := fs.String("bio", "", "new bio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, id, err := a.signIn(ctx, true)
	if err != nil {
		return err
	}

	var update models.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "username":
			update.Username = username
		case "display-name":
			update.DisplayName = displayName
		case "bio":
			update.Bio = bio
		}
	})

	var p *models.Profile
	if update.Empty() {
		p, err = a.Profiles.GetProfile(ctx, id.ID)
	} else {
		p, err = a.Profiles.UpdateProfile(ctx, id, update)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "@%s (%s)\n", p.Username, p.DisplayName)
	if p.Email != "" {
		fmt.Fprintf(out, "  %s\n", p.Email)
	}
	if p.Bio != "" {
		fmt.Fprintf(out, "  %s\n", p.Bio)
	}
	return nil
}

func (a *App) whoami(ctx context.Context, out io.Writer) error {
	_, id, err := a.signIn(ctx, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s <%s>\n", id.ID, id.Email)
	return nil
}

func (a *App) login(ctx context.Context, out io.Writer) error {
	_, id, err := a.signIn(ctx, true)
	if err != nil {
		return err
	}
	ts, ok := a.Provider.(tokenSource)
	if !ok || ts.Tokens().RefreshToken == "" {
		return errors.New("provider does not issue refresh tokens")
	}
	fmt.Fprintf(out, "signed in as %s\nexport HIVER_REFRESH_TOKEN=%s\n", id.Email, ts.Tokens().RefreshToken)
	return nil
}
