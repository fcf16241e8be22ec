package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/longregen/archetype/internal/adapters/metrics"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	"github.com/longregen/archetype/internal/prompt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Names of the agents taking part in a mutation meeting.
const (
	DesignerAgentName   = "Meta Designer"
	ResearcherAgentName = "Researcher"
)

// mutate asks the designer for a child of m.parent and evaluates it. A
// failed candidate is fed back to the designer up to DebugMax times. The
// returned framework has been stored.
func (e *Engine) mutate(ctx context.Context, populationID string, generation int, m mutation, archive []*models.Framework, tasks []models.Task) (*models.Framework, error) {
	ctx, span := tracer.Start(ctx, "evolution.mutate")
	defer span.End()
	span.SetAttributes(
		attribute.String("parent.id", m.parent.ID),
		attribute.String("directive", m.directive.Name),
	)

	system, user, err := e.prompts.Build(ports.MutationRequest{
		Parent:    m.parent,
		Archive:   archive,
		Directive: m.directive.Instruction,
		Example:   m.example,
	})
	if err != nil {
		return nil, err
	}

	conv, err := e.openDesignMeeting(ctx, m.parent.ID, system, user)
	if err != nil {
		return nil, err
	}
	defer e.designer.Release(conv.meetingID)

	var lastErr error
	for attempt := 0; attempt <= e.cfg.DebugMax; attempt++ {
		out, err := e.designer.Respond(ctx, conv.designer, e.schema)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("designer: %w", err)
		}

		fw := models.NewFramework(e.ids.GenerateFrameworkID(), populationID, childName(out), out[prompt.FieldThought], out[prompt.FieldCode])
		fw.ParentID = m.parent.ID
		fw.Directive = m.directive.Name
		fw.GenerationIndex = generation
		fw.DebugAttempts = attempt

		err = e.evaluate(ctx, fw, tasks, true)
		if err == nil {
			if fw.Descriptor, err = e.featurizer.Describe(fw); err != nil {
				return nil, fmt.Errorf("describe framework %s: %w", fw.ID, err)
			}
			if err := e.repo.CreateFramework(ctx, fw); err != nil {
				return nil, fmt.Errorf("store framework %s: %w", fw.ID, err)
			}
			span.SetAttributes(attribute.String("framework.id", fw.ID), attribute.Int("debug_attempts", attempt))
			slog.InfoContext(ctx, "candidate accepted",
				"framework_id", fw.ID,
				"name", fw.Name,
				"parent_id", fw.ParentID,
				"directive", fw.Directive,
				"debug_attempts", attempt,
				"fitness", fw.FitnessString(),
			)
			return fw, nil
		}
		if !domain.IsCandidateFailure(err) {
			return nil, err
		}

		lastErr = err
		metrics.MutationsTotal.WithLabelValues("discarded").Inc()
		slog.WarnContext(ctx, "candidate discarded",
			"framework_id", fw.ID,
			"directive", m.directive.Name,
			"attempt", attempt,
			"cause", err,
		)
		if attempt == e.cfg.DebugMax {
			break
		}
		if err := conv.feedback(ctx, e, out, e.prompts.DebugFeedback(lastErr.Error())); err != nil {
			return nil, err
		}
	}
	span.SetStatus(codes.Error, "debug budget exhausted")
	return nil, fmt.Errorf("no valid candidate after %d attempts: %w", e.cfg.DebugMax+1, lastErr)
}

// designMeeting is the conversation in which one mutation is designed.
type designMeeting struct {
	meetingID  string
	researcher *models.Agent
	designer   *models.Agent
}

func (e *Engine) openDesignMeeting(ctx context.Context, parentID, system, user string) (*designMeeting, error) {
	sys, err := e.designer.CreateAgent(ctx, models.SystemAgentName, e.cfg.DesignerModel, 0)
	if err != nil {
		return nil, err
	}
	researcher, err := e.designer.CreateAgent(ctx, ResearcherAgentName, e.cfg.DesignerModel, 0)
	if err != nil {
		return nil, err
	}
	designer, err := e.designer.CreateAgent(ctx, DesignerAgentName, e.cfg.DesignerModel, e.cfg.DesignerTemperature)
	if err != nil {
		return nil, err
	}
	meeting, err := e.designer.CreateMeeting(ctx, "mutation", parentID)
	if err != nil {
		return nil, err
	}
	if err := e.designer.Join(ctx, meeting.ID, designer); err != nil {
		return nil, err
	}
	if _, err := e.designer.AppendChat(ctx, sys, meeting.ID, system); err != nil {
		return nil, err
	}
	if _, err := e.designer.AppendChat(ctx, researcher, meeting.ID, user); err != nil {
		return nil, err
	}
	return &designMeeting{meetingID: meeting.ID, researcher: researcher, designer: designer}, nil
}

// feedback records the designer's failed answer and the researcher's error
// report so the next Respond sees both.
func (d *designMeeting) feedback(ctx context.Context, e *Engine, answer map[string]string, report string) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode designer answer: %w", err)
	}
	if _, err := e.designer.AppendChat(ctx, d.designer, d.meetingID, string(raw)); err != nil {
		return err
	}
	_, err = e.designer.AppendChat(ctx, d.researcher, d.meetingID, report)
	return err
}

func childName(out map[string]string) string {
	name := strings.TrimSpace(out[prompt.FieldName])
	if name == "" || strings.EqualFold(name, "null") {
		return "Unnamed Architecture"
	}
	return name
}
