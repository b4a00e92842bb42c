package brief

import (
	"fmt"
	"strings"
)

// template renders one agent-role flavor of the brief.
type template struct {
	name string
	// sections build the role-specific body, in order.
	sections []func(*strings.Builder, Input) bool
}

// selectTemplate picks the template by agent_type substring.
func selectTemplate(agentType string) template {
	at := strings.ToLower(agentType)
	switch {
	case strings.Contains(at, "orchestrator"), strings.Contains(at, "tech-lead"):
		return orchestratorTemplate
	case strings.Contains(at, "developer"), strings.Contains(at, "backend"), strings.Contains(at, "frontend"):
		return developerTemplate
	case strings.Contains(at, "specialist"):
		return specialistTemplate
	default:
		return validatorTemplate
	}
}

func (t template) render(in Input) (string, []string) {
	var b strings.Builder
	sources := []string{}

	fmt.Fprintf(&b, "# Context Brief — %s\n\n", in.AgentID)
	if renderSessionHeader(&b, in) {
		sources = append(sources, "session")
	}

	for _, section := range t.sections {
		section(&b, in)
	}

	if renderSnapshot(&b, in.Snapshot) {
		sources = append(sources, "snapshot")
	}

	// Source attribution is data-driven rather than per-template.
	if len(in.Subtasks) > 0 {
		sources = append(sources, "subtasks")
	}
	if len(in.Messages) > 0 {
		sources = append(sources, "messages")
	}
	if len(in.Blocking) > 0 {
		sources = append(sources, "blockings")
	}
	if len(in.Actions) > 0 {
		sources = append(sources, "actions")
	}

	return b.String(), sources
}

func renderSessionHeader(b *strings.Builder, in Input) bool {
	if in.Session == nil && in.Project == nil {
		return false
	}
	if in.Project != nil {
		name := in.Project.Path
		if in.Project.Name != nil && *in.Project.Name != "" {
			name = *in.Project.Name
		}
		fmt.Fprintf(b, "Project: %s\n", name)
	}
	if in.Session != nil {
		fmt.Fprintf(b, "Session: %s (tools used: %d, errors: %d)\n",
			in.Session.ID, in.Session.TotalToolsUsed, in.Session.TotalErrors)
	}
	b.WriteByte('\n')
	return true
}

var orchestratorTemplate = template{
	name: "orchestrator",
	sections: []func(*strings.Builder, Input) bool{
		renderWaveSummary,
		renderCrossAgentStatus,
		renderMessages,
		renderBlockings,
		renderRecentActions,
	},
}

var developerTemplate = template{
	name: "developer",
	sections: []func(*strings.Builder, Input) bool{
		renderCurrentTasks,
		renderRecentFileEdits,
		renderMessages,
		renderBlockings,
		renderRecentActions,
	},
}

var specialistTemplate = template{
	name: "specialist",
	sections: []func(*strings.Builder, Input) bool{
		renderCurrentTasks,
		renderMessages,
		renderBlockings,
		renderRecentActions,
	},
}

var validatorTemplate = template{
	name: "validator",
	sections: []func(*strings.Builder, Input) bool{
		renderCurrentTasks,
		renderBlockings,
		renderMessages,
		renderRecentActions,
	},
}

// renderWaveSummary groups active subtasks by status for the orchestrator's
// wave overview.
func renderWaveSummary(b *strings.Builder, in Input) bool {
	b.WriteString("## Active Waves\n\n")
	if len(in.Subtasks) == 0 {
		b.WriteString("No active subtasks.\n\n")
		return false
	}
	byStatus := map[string]int{}
	for _, st := range in.Subtasks {
		byStatus[st.Status]++
	}
	for _, status := range []string{"running", "paused", "blocked", "pending"} {
		if n := byStatus[status]; n > 0 {
			fmt.Fprintf(b, "- %s: %d subtask(s)\n", status, n)
		}
	}
	b.WriteByte('\n')
	return true
}

// renderCrossAgentStatus lists every active subtask with its assigned agent.
func renderCrossAgentStatus(b *strings.Builder, in Input) bool {
	b.WriteString("## Agent Status\n\n")
	if len(in.Subtasks) == 0 {
		b.WriteString("No agents active.\n\n")
		return false
	}
	for _, st := range in.Subtasks {
		agent := "unassigned"
		if st.AgentID != nil && *st.AgentID != "" {
			agent = *st.AgentID
		} else if st.AgentType != nil && *st.AgentType != "" {
			agent = *st.AgentType
		}
		fmt.Fprintf(b, "- [%s] %s — %s (%s)\n", st.Status, agent, st.Description, st.ID)
	}
	b.WriteByte('\n')
	return true
}

// renderCurrentTasks lists the agent's own active subtasks.
func renderCurrentTasks(b *strings.Builder, in Input) bool {
	b.WriteString("## Current Tasks\n\n")
	if len(in.Subtasks) == 0 {
		b.WriteString("No active tasks.\n\n")
		return false
	}
	for _, st := range in.Subtasks {
		fmt.Fprintf(b, "- [%s] %s (%s)\n", st.Status, st.Description, st.ID)
		if len(st.BlockedBy) > 0 {
			fmt.Fprintf(b, "  blocked by: %s\n", strings.Join(st.BlockedBy, ", "))
		}
	}
	b.WriteByte('\n')
	return true
}

// renderRecentFileEdits collects the file paths touched by recent actions.
func renderRecentFileEdits(b *strings.Builder, in Input) bool {
	seen := map[string]bool{}
	files := []string{}
	for _, a := range in.Actions {
		for _, f := range a.FilePaths {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	b.WriteString("## Recent File Edits\n\n")
	if len(files) == 0 {
		b.WriteString("No recent file edits.\n\n")
		return false
	}
	for _, f := range files {
		fmt.Fprintf(b, "- %s\n", f)
	}
	b.WriteByte('\n')
	return true
}

func renderMessages(b *strings.Builder, in Input) bool {
	b.WriteString("## Unread Messages\n\n")
	if len(in.Messages) == 0 {
		b.WriteString("No unread messages.\n\n")
		return false
	}
	for _, m := range in.Messages {
		target := "broadcast"
		if m.ToAgent != nil {
			target = *m.ToAgent
		}
		fmt.Fprintf(b, "- [%s] from %s to %s (priority %d)\n", m.Topic, m.FromAgent, target, m.Priority)
	}
	b.WriteByte('\n')
	return true
}

func renderBlockings(b *strings.Builder, in Input) bool {
	b.WriteString("## Blockings\n\n")
	if len(in.Blocking) == 0 {
		b.WriteString("No active blockings.\n\n")
		return false
	}
	for _, bl := range in.Blocking {
		line := fmt.Sprintf("- %s blocks %s", bl.Blocker, bl.Blocked)
		if bl.Reason != nil && *bl.Reason != "" {
			line += ": " + *bl.Reason
		}
		b.WriteString(line + "\n")
	}
	b.WriteByte('\n')
	return true
}

func renderRecentActions(b *strings.Builder, in Input) bool {
	b.WriteString("## Recent Activity\n\n")
	if len(in.Actions) == 0 {
		b.WriteString("No recent actions.\n\n")
		return false
	}
	for _, a := range in.Actions {
		outcome := "ok"
		if a.ExitCode != nil && *a.ExitCode != 0 {
			outcome = fmt.Sprintf("exit %d", *a.ExitCode)
		}
		fmt.Fprintf(b, "- %s %s (%s)\n", a.CreatedAt.Format("15:04:05"), a.ToolName, outcome)
	}
	b.WriteByte('\n')
	return true
}

// renderSnapshot renders a snapshot saved before compaction. Active tasks,
// modified files and key decisions come from the stored role_context payload.
func renderSnapshot(b *strings.Builder, snapshot map[string]any) bool {
	if len(snapshot) == 0 {
		return false
	}
	wrote := false

	if tasks, ok := snapshot["active_tasks"].([]any); ok && len(tasks) > 0 {
		b.WriteString("## Saved Tasks\n\n")
		for _, raw := range tasks {
			task, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			id, _ := task["id"].(string)
			desc, _ := task["description"].(string)
			status, _ := task["status"].(string)
			fmt.Fprintf(b, "- [%s] %s %s\n", status, id, desc)
		}
		b.WriteByte('\n')
		wrote = true
	}

	if files, ok := snapshot["modified_files"].([]any); ok && len(files) > 0 {
		b.WriteString("## Modified Files\n\n")
		for _, raw := range files {
			if f, ok := raw.(string); ok {
				fmt.Fprintf(b, "- %s\n", f)
			}
		}
		b.WriteByte('\n')
		wrote = true
	}

	if decisions, ok := snapshot["key_decisions"].([]any); ok && len(decisions) > 0 {
		b.WriteString("## Key Decisions\n\n")
		for _, raw := range decisions {
			if d, ok := raw.(string); ok {
				fmt.Fprintf(b, "- %s\n", d)
			}
		}
		b.WriteByte('\n')
		wrote = true
	}

	if summary, ok := snapshot["context_summary"].(string); ok && summary != "" {
		b.WriteString("## Saved Context\n\n" + summary + "\n\n")
		wrote = true
	}
	return wrote
}
