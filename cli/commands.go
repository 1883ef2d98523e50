package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/transport/rpc"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:   "roundtable",
		Usage:  "Operate multi-participant AI conversations",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", EnvVars: []string{"ROUNDTABLE_SERVER"}, Usage: "REST API base URL"},
			&cli.StringFlag{Name: "rpc", Value: "localhost:8082", EnvVars: []string{"ROUNDTABLE_RPC"}, Usage: "JSON-RPC address"},
		},
		Commands: []*cli.Command{
			conversationsCmd(),
			sendCmd(),
			stopCmd(),
			stateCmd(),
			watchCmd(),
			canvasCmd(),
			proposalsCmd(),
			rolesCmd(),
			memoriesCmd(),
			analyticsCmd(),
			transcriptCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func api(c *cli.Context) *apiClient {
	return newAPIClient(c.String("server"))
}

func conversationsCmd() *cli.Command {
	return &cli.Command{
		Name:  "conversations",
		Usage: "Create and list conversations",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a conversation",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title (set from the first message when empty)"},
					&cli.StringFlag{Name: "participants", Aliases: []string{"p"}, Usage: "Comma-separated participant ids (default: all)"},
					&cli.StringFlag{Name: "policy", Value: string(domain.TurnPolicyCyclic), Usage: "Turn policy: cyclic|all_once"},
					&cli.StringFlag{Name: "folder", Usage: "Folder id"},
				},
				Action: func(c *cli.Context) error {
					req := domain.CreateConversationRequest{
						Title:              c.String("title"),
						ActiveParticipants: splitList(c.String("participants")),
						TurnPolicy:         domain.TurnPolicyKind(c.String("policy")),
						FolderID:           c.String("folder"),
					}
					var conv domain.Conversation
					if err := api(c).do(http.MethodPost, "/v1/conversations", req, &conv); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, conv)
				},
			},
			{
				Name:  "list",
				Usage: "List conversations, pinned first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Usage: "Only conversations in this folder"},
					&cli.BoolFlag{Name: "archived", Usage: "Include archived conversations"},
				},
				Action: func(c *cli.Context) error {
					q := url.Values{}
					if f := c.String("folder"); f != "" {
						q.Set("folder_id", f)
					}
					if c.Bool("archived") {
						q.Set("include_archived", "true")
					}
					p := "/v1/conversations"
					if len(q) > 0 {
						p += "?" + q.Encode()
					}
					var resp struct {
						Conversations []domain.Conversation `json:"conversations"`
					}
					if err := api(c).do(http.MethodGet, p, nil, &resp); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, resp.Conversations)
				},
			},
		},
	}
}

func sendCmd() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a human message and start the turn loop",
		ArgsUsage: "<conversation_id> <text...>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "Attach a file by URL (repeatable)"},
			&cli.BoolFlag{Name: "extract", Usage: "Extract attached file contents before the turn"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("conversation_id is required", 1)
			}
			req := domain.SendMessageRequest{Content: strings.Join(c.Args().Tail(), " ")}
			for _, u := range c.StringSlice("file") {
				req.Attachments = append(req.Attachments, domain.AttachmentInput{
					FileName: fileNameOf(u),
					FileURL:  u,
					Extract:  c.Bool("extract"),
				})
			}
			var resp domain.SendMessageResponse
			if err := api(c).do(http.MethodPost, "/v1/conversations/"+c.Args().First()+"/messages", req, &resp); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, resp)
		},
	}
}

func stopCmd() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Stop a conversation's turn loop",
		ArgsUsage: "<conversation_id>",
		Action: func(c *cli.Context) error {
			return callRPC(c, "Stop", &rpc.ConversationArgs{ConversationID: c.Args().First()}, &rpc.StateResponse{})
		},
	}
}

func stateCmd() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Show a conversation's loop state",
		ArgsUsage: "<conversation_id>",
		Action: func(c *cli.Context) error {
			return callRPC(c, "State", &rpc.ConversationArgs{ConversationID: c.Args().First()}, &rpc.StateResponse{})
		},
	}
}

func canvasCmd() *cli.Command {
	return &cli.Command{
		Name:      "canvas",
		Usage:     "Print a conversation's code canvas",
		ArgsUsage: "<conversation_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Print only the code"},
		},
		Action: func(c *cli.Context) error {
			var canvas domain.CodeCanvas
			client, err := dialRPC(c.String("rpc"))
			if err != nil {
				return outputError(err)
			}
			defer client.Close()
			if err := client.Call(rpc.ServiceName+".GetCanvas", &rpc.ConversationArgs{ConversationID: c.Args().First()}, &canvas); err != nil {
				return outputError(err)
			}
			if c.Bool("raw") {
				_, err := fmt.Fprintln(c.App.Writer, canvas.Content)
				return err
			}
			return outputJSON(c.App.Writer, canvas)
		},
	}
}

func proposalsCmd() *cli.Command {
	decide := func(decision, usage string) *cli.Command {
		return &cli.Command{
			Name:      decision,
			Usage:     usage,
			ArgsUsage: "<proposal_id>",
			Action: func(c *cli.Context) error {
				return callRPC(c, "DecideProposal", &rpc.DecideProposalArgs{ProposalID: c.Args().First(), Decision: decision}, &domain.RoleProposal{})
			},
		}
	}
	return &cli.Command{
		Name:  "proposals",
		Usage: "Review role change proposals",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List proposals of a conversation",
				ArgsUsage: "<conversation_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Value: string(domain.ProposalStatusPending), Usage: "PENDING|APPROVED|DENIED|EXPIRED, empty for all"},
				},
				Action: func(c *cli.Context) error {
					var resp struct {
						Proposals []domain.RoleProposal `json:"proposals"`
					}
					p := "/v1/conversations/" + c.Args().First() + "/proposals?status=" + url.QueryEscape(c.String("status"))
					if err := api(c).do(http.MethodGet, p, nil, &resp); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, resp.Proposals)
				},
			},
			decide("approve", "Approve a pending role proposal"),
			decide("deny", "Deny a pending role proposal"),
		},
	}
}

func rolesCmd() *cli.Command {
	return &cli.Command{
		Name:  "roles",
		Usage: "Manage participant roles",
		Subcommands: []*cli.Command{
			{
				Name:      "negotiate",
				Usage:     "Let the model assign a role to every active participant",
				ArgsUsage: "<conversation_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prompt", Usage: "Task to staff (default: latest human message)"},
					&cli.BoolFlag{Name: "apply", Usage: "Replace the conversation's roles with the result"},
				},
				Action: func(c *cli.Context) error {
					req := domain.NegotiateRolesRequest{Prompt: c.String("prompt"), Apply: c.Bool("apply")}
					var team domain.TeamFormation
					if err := api(c).do(http.MethodPost, "/v1/conversations/"+c.Args().First()+"/roles/negotiate", req, &team); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, team)
				},
			},
		},
	}
}

func analyticsCmd() *cli.Command {
	return &cli.Command{
		Name:  "analytics",
		Usage: "Show reply counts and response times per participant",
		Action: func(c *cli.Context) error {
			var report domain.Analytics
			if err := api(c).do(http.MethodGet, "/v1/analytics", nil, &report); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, report)
		},
	}
}

func memoriesCmd() *cli.Command {
	return &cli.Command{
		Name:  "memories",
		Usage: "Inspect and import participant memories",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List a participant's memories",
				ArgsUsage: "<participant_id>",
				Action: func(c *cli.Context) error {
					var resp struct {
						Memories []domain.MemoryRecord `json:"memories"`
					}
					if err := api(c).do(http.MethodGet, "/v1/participants/"+c.Args().First()+"/memories", nil, &resp); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, resp.Memories)
				},
			},
			{
				Name:      "import",
				Usage:     "Extract memories for a participant from a document",
				ArgsUsage: "<participant_id> <file_url>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return cli.Exit("participant_id and file_url are required", 1)
					}
					req := domain.ImportDocumentRequest{FileName: fileNameOf(c.Args().Get(1)), FileURL: c.Args().Get(1)}
					var resp json.RawMessage
					if err := api(c).do(http.MethodPost, "/v1/participants/"+c.Args().First()+"/memories/import", req, &resp); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, resp)
				},
			},
		},
	}
}

func transcriptCmd() *cli.Command {
	return &cli.Command{
		Name:      "transcript",
		Usage:     "Export a conversation transcript",
		ArgsUsage: "<conversation_id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "markdown", Usage: "markdown|html"},
		},
		Action: func(c *cli.Context) error {
			var body []byte
			p := "/v1/conversations/" + c.Args().First() + "/transcript?format=" + url.QueryEscape(c.String("format"))
			if err := api(c).do(http.MethodGet, p, nil, &body); err != nil {
				return outputError(err)
			}
			_, err := c.App.Writer.Write(body)
			return err
		},
	}
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream a conversation's events",
		ArgsUsage: "<conversation_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "until-idle", Usage: "Exit once the loop yields or stops"},
		},
		Action: func(c *cli.Context) error {
			addr, err := api(c).wsURL(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
			if err != nil {
				return outputError(fmt.Errorf("dial: %w", err))
			}
			defer conn.Close()

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			defer signal.Stop(interrupt)
			go func() {
				if _, ok := <-interrupt; ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					_ = conn.Close()
				}
			}()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return nil
				}
				done, err := printEvent(c.App.Writer, data)
				if err != nil {
					return outputError(err)
				}
				if done && c.Bool("until-idle") {
					return nil
				}
			}
		},
	}
}

// printEvent writes one event line and reports whether it ended the run.
func printEvent(w io.Writer, data []byte) (bool, error) {
	var evt struct {
		Type    string          `json:"type"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return false, fmt.Errorf("decode event: %w", err)
	}

	switch domain.EventType(evt.Type) {
	case domain.EventTypeMessageCreated:
		var m domain.Message
		if err := json.Unmarshal(evt.Data, &m); err != nil {
			return false, err
		}
		who := string(m.Role)
		if m.ParticipantID != "" {
			who = m.ParticipantID
		}
		_, err := fmt.Fprintf(w, "[%s] %s\n", who, m.Content)
		return false, err
	case domain.EventTypeLoopState:
		var p domain.LoopStatePayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return false, err
		}
		_, err := fmt.Fprintf(w, "-- loop %s %s\n", p.State, p.Reason)
		return p.State == domain.LoopStateYielded || p.State == domain.LoopStateStopped, err
	case domain.EventTypeSpeakerChanged:
		var p domain.SpeakerPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return false, err
		}
		if p.ParticipantID == "" {
			return false, nil
		}
		_, err := fmt.Fprintf(w, "-- %s is typing\n", p.ParticipantID)
		return false, err
	case "error":
		_, err := fmt.Fprintf(w, "!! %s: %s\n", evt.Code, evt.Message)
		return false, err
	default:
		_, err := fmt.Fprintf(w, "-- %s %s\n", evt.Type, string(evt.Data))
		return false, err
	}
}

func callRPC(c *cli.Context, method string, args, reply interface{}) error {
	if c.NArg() < 1 {
		return cli.Exit("an id argument is required", 1)
	}
	client, err := dialRPC(c.String("rpc"))
	if err != nil {
		return outputError(err)
	}
	defer client.Close()
	if err := client.Call(rpc.ServiceName+"."+method, args, reply); err != nil {
		return outputError(err)
	}
	return outputJSON(c.App.Writer, reply)
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fileNameOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return rawURL
}
