// ABOUTME: Bounded tool-augmented agent loop for one conversation turn
// ABOUTME: Alternates model calls and tool execution under call, token, and time budgets

package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/fixai/fixai-gateway/internal/model"
	"github.com/fixai/fixai-gateway/internal/tools"
)

// ModelClient is the chat-completion backend the loop drives.
type ModelClient interface {
	Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error)
	Stream(ctx context.Context, req model.CompletionRequest, onToken func(string)) (*model.Completion, error)
}

// ToolInvoker supplies the tool catalog and executes invocations.
type ToolInvoker interface {
	Definitions() []model.ToolDefinition
	Invoke(ctx context.Context, name string, args map[string]any) tools.Result
}

// Budgets are the hard per-turn limits. Exceeding any of them forces a final
// synthesis rather than failing the turn.
type Budgets struct {
	MaxModelCalls          int
	MaxInputTokens         int
	TokenEstimationDivisor int
	ToolResultMaxChars     int
	MaxTurnDuration        time.Duration
}

// Request is one user turn: the prior (possibly summarized) history, the new
// user message, and optional context to bias tool selection. Summary, when
// set, is the condensed form of older history that was dropped from History.
type Request struct {
	History     []model.Message
	Summary     string
	UserMessage string
	Context     *UserContext
}

// ToolStep records one completed tool invocation for persistence and debug
// traces. Result holds the (possibly truncated) text appended to history;
// ResultLength is the untruncated length.
type ToolStep struct {
	ID           string
	Name         string
	Args         map[string]any
	Number       int
	ModelCall    int
	Result       string
	ResultLength int
	DurationMS   int64
	IsError      bool
}

// Outcome summarizes a finished turn.
type Outcome struct {
	FinalText string
	Stats     StatsPayload
	Steps     []ToolStep
	Stopped   bool
}

// Loop runs turns against a model backend and tool registry. A Loop is
// stateless across turns; each Run carries its own history.
type Loop struct {
	model   ModelClient
	tools   ToolInvoker
	budgets Budgets
	logger  *slog.Logger
}

const (
	// historyTruncationNote is appended when a tool result is cut to fit the
	// per-result history cap.
	historyTruncationNote = "\n\n... [truncated – use more specific filters]"

	// previewCap bounds the result preview carried on tool_end events.
	previewCap = 2000

	limitReachedText = "**Investigation limit reached** — see findings above. " +
		"Start a follow-up conversation for deeper investigation."
)

func New(modelClient ModelClient, toolInvoker ToolInvoker, budgets Budgets, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if budgets.MaxModelCalls <= 0 {
		budgets.MaxModelCalls = 15
	}
	if budgets.MaxInputTokens <= 0 {
		budgets.MaxInputTokens = 80_000
	}
	if budgets.TokenEstimationDivisor <= 0 {
		budgets.TokenEstimationDivisor = 4
	}
	if budgets.ToolResultMaxChars <= 0 {
		budgets.ToolResultMaxChars = 12_000
	}
	if budgets.MaxTurnDuration <= 0 {
		budgets.MaxTurnDuration = 5 * time.Minute
	}
	return &Loop{
		model:   modelClient,
		tools:   toolInvoker,
		budgets: budgets,
		logger:  logger.With("component", "agentloop"),
	}
}

// Run executes one turn, invoking emit for every progress event in order. The
// last event is always done or error. Cancellation via ctx is cooperative:
// checked at state transition boundaries, never mid-call; a tool already
// dispatched finishes but its result is discarded.
//
// Returned errors are model-backend failures; everything else (tool errors,
// budget exhaustion, cancellation) is absorbed into a normal completion.
func (l *Loop) Run(ctx context.Context, req Request, emit func(Event)) (*Outcome, error) {
	start := time.Now()

	system := systemPrompt
	if hint := contextHint(req.Context); hint != "" {
		system += "\n\n" + hint
	}
	if req.Summary != "" {
		system += "\n\nPrevious conversation summary:\n" + req.Summary
	}

	history := make([]model.Message, 0, len(req.History)+1)
	history = append(history, req.History...)
	history = append(history, model.UserMessage(req.UserMessage))

	catalog := l.tools.Definitions()

	var (
		finalText     string
		steps         []ToolStep
		toolCallCount int
		modelCalls    int
		stopped       bool
		lastAssistant string
	)

turn:
	for call := 1; ; call++ {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		if call > l.budgets.MaxModelCalls {
			// should be unreachable: the last allowed call forces synthesis
			l.logger.Warn("model call budget exceeded", "call", call)
			finalText = limitReachedText
			break
		}

		modelCalls = call
		est := l.estimateTokens(system, history)
		emit(statsEvent(StatsPayload{
			AICalls:         call,
			MaxAICalls:      l.budgets.MaxModelCalls,
			ToolCalls:       toolCallCount,
			ElapsedSeconds:  elapsedSeconds(start),
			EstimatedTokens: est,
			MaxTokens:       l.budgets.MaxInputTokens,
		}))

		forceSynthesis := call == l.budgets.MaxModelCalls ||
			est > l.budgets.MaxInputTokens ||
			time.Since(start) >= l.budgets.MaxTurnDuration

		if forceSynthesis {
			l.logger.Info("forcing synthesis",
				"call", call, "estimated_tokens", est, "elapsed", time.Since(start))

			msgs := append(slices.Clone(history), model.UserMessage(synthesisRequest))
			comp, err := l.model.Stream(ctx,
				model.CompletionRequest{System: system, Messages: msgs},
				func(tok string) { emit(tokenEvent(tok)) })
			if err != nil {
				if ctx.Err() != nil {
					stopped = true
					break
				}
				emit(errorEvent("Agent error: " + err.Error()))
				return nil, fmt.Errorf("synthesis call failed: %w", err)
			}
			// no tools were offered, so the reply can only be text
			finalText = comp.Text
			break
		}

		comp, err := l.model.Complete(ctx, model.CompletionRequest{
			System:   system,
			Messages: history,
			Tools:    catalog,
		})
		if err != nil {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			emit(errorEvent("Agent error: " + err.Error()))
			return nil, fmt.Errorf("model call %d failed: %w", call, err)
		}

		if len(comp.ToolCalls) == 0 {
			// a plain text reply, even an empty one, is the final answer
			finalText = comp.Text
			break
		}

		lastAssistant = comp.Text
		history = append(history, model.Message{
			Role:      model.RoleAssistant,
			Content:   comp.Text,
			ToolCalls: comp.ToolCalls,
		})

		for _, tc := range comp.ToolCalls {
			if ctx.Err() != nil {
				stopped = true
				break turn
			}

			toolCallCount++
			emit(Event{Type: EventToolStart, Payload: ToolStartPayload{
				ID:         tc.ID,
				Tool:       tc.Name,
				Args:       tc.Args,
				ToolNumber: toolCallCount,
				ModelCall:  call,
			}})

			toolStart := time.Now()
			res := l.tools.Invoke(ctx, tc.Name, tc.Args)
			durationMS := time.Since(toolStart).Milliseconds()

			fullLen := len(res.Text)
			resultText := res.Text
			// rune-based caps so truncation never splits a multibyte character
			if runes := []rune(resultText); len(runes) > l.budgets.ToolResultMaxChars {
				resultText = string(runes[:l.budgets.ToolResultMaxChars]) + historyTruncationNote
			}
			preview := res.Text
			if runes := []rune(preview); len(runes) > previewCap {
				preview = string(runes[:previewCap])
			}

			emit(Event{Type: EventToolEnd, Payload: ToolEndPayload{
				Tool:          tc.Name,
				ResultPreview: preview,
				ResultLength:  fullLen,
				DurationMS:    durationMS,
				IsError:       res.IsError,
			}})

			if ctx.Err() != nil {
				// the in-flight call finished; its result is discarded
				stopped = true
				break turn
			}

			steps = append(steps, ToolStep{
				ID:           tc.ID,
				Name:         tc.Name,
				Args:         tc.Args,
				Number:       toolCallCount,
				ModelCall:    call,
				Result:       resultText,
				ResultLength: fullLen,
				DurationMS:   durationMS,
				IsError:      res.IsError,
			})
			history = append(history, model.ToolResultMessage(tc.ID, resultText))
		}
	}

	if stopped {
		l.logger.Info("turn stopped by user",
			"model_calls", modelCalls, "tool_calls", toolCallCount)
		if strings.TrimSpace(lastAssistant) != "" {
			finalText = strings.TrimSpace(lastAssistant) + stoppedSuffix
		} else {
			finalText = stoppedNoResults
		}
	}

	finalStats := StatsPayload{
		AICalls:         modelCalls,
		MaxAICalls:      l.budgets.MaxModelCalls,
		ToolCalls:       toolCallCount,
		ElapsedSeconds:  elapsedSeconds(start),
		EstimatedTokens: l.estimateTokens(system, history),
		MaxTokens:       l.budgets.MaxInputTokens,
		Final:           true,
	}
	emit(statsEvent(finalStats))
	emit(doneEvent(finalText))

	return &Outcome{
		FinalText: finalText,
		Stats:     finalStats,
		Steps:     steps,
		Stopped:   stopped,
	}, nil
}

// estimateTokens approximates token usage as accumulated characters divided by
// a fixed divisor. Deliberately rough: it only needs to be monotonic enough to
// trigger the budget before the backend rejects the context.
func (l *Loop) estimateTokens(system string, msgs []model.Message) int {
	chars := len(system)
	for _, m := range msgs {
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + len(fmt.Sprintf("%v", tc.Args))
		}
	}
	return chars / l.budgets.TokenEstimationDivisor
}

func elapsedSeconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*10) / 10
}
