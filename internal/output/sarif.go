package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/rulebot/internal/review"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// Rule identifiers used in SARIF output.
const (
	ruleSuggestion   = "rulebot/rule-violation"
	ruleFileFailure  = "rulebot/review-failed"
	ruleCommentError = "rulebot/comment-not-posted"
)

// SARIFWriter outputs suggestions in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *review.Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool              sarifTool             `json:"tool"`
	AutomationDetails *sarifAutomation      `json:"automationDetails,omitempty"`
	VersionControl    []sarifVersionControl `json:"versionControlProvenance,omitempty"`
	Results           []sarifResult         `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifAutomation struct {
	ID string `json:"id"`
}

type sarifVersionControl struct {
	RepositoryURI string `json:"repositoryUri"`
	RevisionID    string `json:"revisionId,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

var sarifRules = []sarifRule{
	{
		ID:               ruleSuggestion,
		Name:             "ProjectRuleViolation",
		ShortDescription: sarifMessage{Text: "Added line may violate a project rule"},
		DefaultConfig:    sarifDefaultConfig{Level: "warning"},
	},
	{
		ID:               ruleFileFailure,
		Name:             "ReviewFailed",
		ShortDescription: sarifMessage{Text: "File could not be reviewed"},
		DefaultConfig:    sarifDefaultConfig{Level: "error"},
	},
	{
		ID:               ruleCommentError,
		Name:             "CommentNotPosted",
		ShortDescription: sarifMessage{Text: "Review comment could not be posted"},
		DefaultConfig:    sarifDefaultConfig{Level: "note"},
	},
}

func buildSARIF(report *review.Report) sarifLog {
	results := []sarifResult{}
	for _, f := range report.Files {
		switch f.Status {
		case review.StatusProviderError, review.StatusParseFailure:
			results = append(results, sarifResult{
				RuleID:    ruleFileFailure,
				Level:     "error",
				Message:   sarifMessage{Text: fmt.Sprintf("%s: %s", statusLabel(f.Status), f.Error)},
				Locations: []sarifLocation{fileLocation(f.Path, 0)},
			})
			continue
		case review.StatusIgnored:
			continue
		}
		for _, sg := range f.Suggestions {
			results = append(results, sarifResult{
				RuleID:    ruleSuggestion,
				Level:     "warning",
				Message:   sarifMessage{Text: sg.Comment},
				Locations: []sarifLocation{fileLocation(f.Path, sg.Line)},
			})
		}
		if f.PostFailures > 0 {
			results = append(results, sarifResult{
				RuleID:    ruleCommentError,
				Level:     "note",
				Message:   sarifMessage{Text: fmt.Sprintf("%d comment(s) could not be posted", f.PostFailures)},
				Locations: []sarifLocation{fileLocation(f.Path, 0)},
			})
		}
	}

	run := sarifRun{
		Tool: sarifTool{
			Driver: sarifDriver{
				Name:    report.Tool,
				Version: report.Version,
				Rules:   sarifRules,
			},
		},
		Results: results,
	}
	if report.RunID != "" {
		run.AutomationDetails = &sarifAutomation{ID: "rulebot/" + report.RunID}
	}
	if report.Repository != "" {
		run.VersionControl = []sarifVersionControl{{
			RepositoryURI: "https://github.com/" + report.Repository,
			RevisionID:    report.CommitID,
		}}
	}

	return sarifLog{Version: "2.1.0", Schema: sarifSchema, Runs: []sarifRun{run}}
}

// fileLocation points at path, and at line when it is positive.
func fileLocation(path string, line int) sarifLocation {
	loc := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: path},
		},
	}
	if line > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: line}
	}
	return loc
}
