package poll

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 创建投票时的校验边界
const (
	maxQuestionLength = 200
	maxOptionLength   = 100
	minOptionCount    = 2
	maxOptionCount    = 10
)

// ValidateInput 校验创建投票的输入，返回清洗后的问题和选项文本。
// 每条违规都以ValidationError报告具体规则。
func ValidateInput(question string, options []string) (string, []string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, apperror.New(apperror.KindValidation, "问题不能为空")
	}
	if len([]rune(question)) > maxQuestionLength {
		return "", nil, apperror.New(apperror.KindValidation, fmt.Sprintf("问题长度不能超过%d个字符", maxQuestionLength))
	}

	cleaned := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return "", nil, apperror.New(apperror.KindValidation, "选项不能为空")
		}
		if len([]rune(opt)) > maxOptionLength {
			return "", nil, apperror.New(apperror.KindValidation, fmt.Sprintf("选项长度不能超过%d个字符", maxOptionLength))
		}
		lower := strings.ToLower(opt)
		if seen[lower] {
			return "", nil, apperror.New(apperror.KindValidation, "选项不能重复: "+opt)
		}
		seen[lower] = true
		cleaned = append(cleaned, opt)
	}

	if len(cleaned) < minOptionCount {
		return "", nil, apperror.New(apperror.KindValidation, fmt.Sprintf("至少需要%d个选项", minOptionCount))
	}
	if len(cleaned) > maxOptionCount {
		return "", nil, apperror.New(apperror.KindValidation, fmt.Sprintf("最多允许%d个选项", maxOptionCount))
	}
	return question, cleaned, nil
}

// publish 在投票创建后把快照推送给实时订阅者。
// 由broadcast包在init时注册；broadcast依赖本包的Snapshot类型，
// 反向的直接调用会造成循环导入。
var publish func(*Snapshot)

// RegisterPublisher 注册创建投票后的快照推送函数。
func RegisterPublisher(fn func(*Snapshot)) {
	publish = fn
}

// Create 校验并在一个事务中创建投票及其全部选项。
func Create(question string, options []string, creatorID string) (*Snapshot, error) {
	question, cleaned, err := ValidateInput(question, options)
	if err != nil {
		return nil, err
	}

	pollUUID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成UUID v7: %w", err)
	}

	p := Poll{
		ID:        pollUUID.String(),
		Question:  question,
		CreatorID: creatorID,
	}
	for i, text := range cleaned {
		optUUID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("无法生成UUID v7: %w", err)
		}
		p.Options = append(p.Options, Option{
			ID:       optUUID.String(),
			PollID:   p.ID,
			Text:     text,
			Position: i,
		})
	}

	if err := database.DB.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("无法创建投票: %w", err)
	}

	snap := snapshotOf(&p, nil)
	RefreshCachedSnapshot(snap)
	// 新投票同样要到达全局流的订阅者，客户端靠这一帧发现它
	if publish != nil {
		publish(snap)
	}
	return snap, nil
}

// getPoll 加载投票及其选项（按创建顺序）。
func getPoll(db *gorm.DB, pollID string) (*Poll, error) {
	var p Poll
	err := db.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	}).Where("id = ?", pollID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "投票不存在")
	}
	if err != nil {
		return nil, fmt.Errorf("查询投票失败: %w", err)
	}
	return &p, nil
}

// snapshotOf 把投票实体和它的选票组装成快照。
// 派生量(votes、total_votes)在这里现算，保证恒与voters集合一致。
func snapshotOf(p *Poll, votes []Vote) *Snapshot {
	votersByOption := make(map[string][]string, len(p.Options))
	for _, v := range votes {
		votersByOption[v.OptionID] = append(votersByOption[v.OptionID], v.UserID)
	}

	snap := &Snapshot{
		ID:        p.ID,
		Question:  p.Question,
		CreatorID: p.CreatorID,
		IsClosed:  p.IsClosed,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Options:   make([]OptionSnapshot, 0, len(p.Options)),
	}
	for _, opt := range p.Options {
		voters := votersByOption[opt.ID]
		if voters == nil {
			voters = []string{}
		}
		snap.Options = append(snap.Options, OptionSnapshot{
			ID:     opt.ID,
			Text:   opt.Text,
			Votes:  len(voters),
			Voters: voters,
		})
		snap.TotalVotes += len(voters)
	}
	return snap
}

// BuildSnapshot 在给定的数据库句柄（可以是事务）上构建投票的权威快照。
func BuildSnapshot(db *gorm.DB, pollID string) (*Snapshot, error) {
	p, err := getPoll(db, pollID)
	if err != nil {
		return nil, err
	}

	var votes []Vote
	if err := db.Where("poll_id = ?", pollID).Order("id asc").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("查询选票失败: %w", err)
	}
	return snapshotOf(p, votes), nil
}

// GetSnapshot 返回单个投票的快照，优先命中Redis缓存。
func GetSnapshot(pollID string) (*Snapshot, error) {
	if snap, ok := getCachedSnapshot(pollID); ok {
		return snap, nil
	}
	snap, err := BuildSnapshot(database.DB, pollID)
	if err != nil {
		return nil, err
	}
	RefreshCachedSnapshot(snap)
	return snap, nil
}

// ListAll 返回全部投票的快照，按创建时间降序（稳定排序）。
func ListAll() ([]*Snapshot, error) {
	return listWhere(nil)
}

// ListByCreator 返回指定用户创建的投票快照，按创建时间降序。
func ListByCreator(creatorID string) ([]*Snapshot, error) {
	return listWhere(map[string]interface{}{"creator_id": creatorID})
}

func listWhere(cond map[string]interface{}) ([]*Snapshot, error) {
	query := database.DB.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	}).Order("created_at desc, id desc")
	if cond != nil {
		query = query.Where(cond)
	}

	var polls []Poll
	if err := query.Find(&polls).Error; err != nil {
		return nil, fmt.Errorf("查询投票列表失败: %w", err)
	}
	if len(polls) == 0 {
		return []*Snapshot{}, nil
	}

	pollIDs := make([]string, len(polls))
	for i := range polls {
		pollIDs[i] = polls[i].ID
	}
	var votes []Vote
	if err := database.DB.Where("poll_id IN ?", pollIDs).Order("id asc").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("查询选票失败: %w", err)
	}
	votesByPoll := make(map[string][]Vote, len(polls))
	for _, v := range votes {
		votesByPoll[v.PollID] = append(votesByPoll[v.PollID], v)
	}

	snaps := make([]*Snapshot, 0, len(polls))
	for i := range polls {
		snaps = append(snaps, snapshotOf(&polls[i], votesByPoll[polls[i].ID]))
	}
	return snaps, nil
}
