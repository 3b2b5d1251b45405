package conversation

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const placeholderPrefix = "pending-"

// NoSummary is stored when the summarizer could not produce a summary.
const NoSummary = "[NO_SUMMARY]"

// PlaceholderID is the key a conversation has before the gateway assigns a call id.
func PlaceholderID(listingID string) string {
	return placeholderPrefix + listingID
}

type Conversation struct {
	CallSID       string         `gorm:"column:call_sid;type:varchar(255);primaryKey;not null"`
	ListingID     string         `gorm:"column:listing_id;type:varchar(255);index;not null;default:''"`
	State         string         `gorm:"column:state;type:varchar(16);not null;default:'INTRO'"`
	QuestionIndex int            `gorm:"column:question_index;type:int;not null;default:0"`
	Answers       datatypes.JSON `gorm:"column:answers;type:jsonb"`
	Questions     datatypes.JSON `gorm:"column:questions;type:jsonb"`
	SummaryText   *string        `gorm:"column:summary_text;type:text"`
	RecordingKey  *string        `gorm:"column:recording_key;type:text"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func newConversation(callID, listingID string) *Conversation {
	return &Conversation{
		CallSID:   callID,
		ListingID: listingID,
		State:     dialogue.StateIntro.String(),
		Answers:   encodeAnswers(nil),
		Questions: encodeQuestions(nil),
	}
}

func (conversation *Conversation) AnswerMap() map[string]string {
	answers := map[string]string{}

	if len(conversation.Answers) == 0 {
		return answers
	}

	err := json.Unmarshal(conversation.Answers, &answers)
	if err != nil {
		logging.Logger.Warn("[AnswerMap] stored answers are not valid json",
			zap.String("call_id", conversation.CallSID),
			zap.String("error", err.Error()),
		)

		return map[string]string{}
	}

	return answers
}

func (conversation *Conversation) QuestionList() []string {
	questions := []string{}

	if len(conversation.Questions) == 0 {
		return questions
	}

	err := json.Unmarshal(conversation.Questions, &questions)
	if err != nil {
		logging.Logger.Warn("[QuestionList] stored questions are not valid json",
			zap.String("call_id", conversation.CallSID),
			zap.String("error", err.Error()),
		)

		return []string{}
	}

	return questions
}

// Snapshot converts the record to dialogue state. An unknown state name
// falls back to INTRO.
func (conversation *Conversation) Snapshot() dialogue.Snapshot {
	state, err := dialogue.ParseState(conversation.State)
	if err != nil {
		logging.Logger.Warn("[Snapshot] unknown stored state, restarting dialogue",
			zap.String("call_id", conversation.CallSID),
			zap.String("state", conversation.State),
		)

		state = dialogue.StateIntro
	}

	return dialogue.Snapshot{
		State:     state,
		Index:     conversation.QuestionIndex,
		Answers:   conversation.AnswerMap(),
		Questions: conversation.QuestionList(),
	}
}

func (conversation *Conversation) Summary() string {
	if conversation.SummaryText == nil {
		return ""
	}

	return *conversation.SummaryText
}

func (conversation *Conversation) clone() *Conversation {
	copied := *conversation
	copied.Answers = append(datatypes.JSON(nil), conversation.Answers...)
	copied.Questions = append(datatypes.JSON(nil), conversation.Questions...)

	return &copied
}

func encodeAnswers(answers map[string]string) datatypes.JSON {
	if answers == nil {
		answers = map[string]string{}
	}

	encoded, _ := json.Marshal(answers)

	return encoded
}

func encodeQuestions(questions []string) datatypes.JSON {
	if questions == nil {
		questions = []string{}
	}

	encoded, _ := json.Marshal(questions)

	return encoded
}
