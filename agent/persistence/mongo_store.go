package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

// NewMongoDatabase 连接 Mongo 并返回配置的数据库
func NewMongoDatabase(ctx context.Context, cfg MongoStoreConfig) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping Mongo: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}

type planDoc struct {
	ConvID         string    `bson:"conv_id"`
	SubTaskNum     int       `bson:"sub_task_num"`
	SubTaskID      string    `bson:"sub_task_id"`
	SubTaskTitle   string    `bson:"sub_task_title"`
	SubTaskContent string    `bson:"sub_task_content"`
	SubTaskAgent   string    `bson:"sub_task_agent"`
	Rely           string    `bson:"rely"`
	AgentModel     string    `bson:"agent_model"`
	State          string    `bson:"state"`
	RetryTimes     int       `bson:"retry_times"`
	MaxRetryTimes  int       `bson:"max_retry_times"`
	Result         string    `bson:"result"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (d *planDoc) toPlan() *types.GptsPlan {
	return planRowFromDoc(d).toPlan()
}

func planRowFromDoc(d *planDoc) *planRow {
	return &planRow{
		ConvID: d.ConvID, SubTaskNum: d.SubTaskNum, SubTaskID: d.SubTaskID,
		SubTaskTitle: d.SubTaskTitle, SubTaskContent: d.SubTaskContent, SubTaskAgent: d.SubTaskAgent,
		Rely: d.Rely, AgentModel: d.AgentModel, State: d.State,
		RetryTimes: d.RetryTimes, MaxRetryTimes: d.MaxRetryTimes, Result: d.Result,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func planDocFrom(p *types.GptsPlan) *planDoc {
	r := planToRow(p)
	return &planDoc{
		ConvID: r.ConvID, SubTaskNum: r.SubTaskNum, SubTaskID: r.SubTaskID,
		SubTaskTitle: r.SubTaskTitle, SubTaskContent: r.SubTaskContent, SubTaskAgent: r.SubTaskAgent,
		Rely: r.Rely, AgentModel: r.AgentModel, State: r.State,
		RetryTimes: r.RetryTimes, MaxRetryTimes: r.MaxRetryTimes, Result: r.Result,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// MongoPlans GptsPlansMemory 的 Mongo 实现
type MongoPlans struct {
	coll *mongo.Collection
}

var _ memory.GptsPlansMemory = (*MongoPlans)(nil)
var _ memory.Expirer = (*MongoPlans)(nil)

// NewMongoPlans 创建 Mongo 计划存储并确保索引存在
func NewMongoPlans(ctx context.Context, db *mongo.Database) (*MongoPlans, error) {
	coll := db.Collection(plansTable)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conv_id", Value: 1}, {Key: "sub_task_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create plan index: %w", err)
	}
	return &MongoPlans{coll: coll}, nil
}

// BatchSave implements memory.GptsPlansMemory.
func (s *MongoPlans) BatchSave(ctx context.Context, plans []*types.GptsPlan) error {
	if len(plans) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(plans))
	docs := make([]any, 0, len(plans))
	now := time.Now()
	for _, p := range plans {
		if p == nil || p.ConvID == "" || p.SubTaskID == "" {
			return fmt.Errorf("%w: plan requires conv_id and sub_task_id", memory.ErrInvalidInput)
		}
		key := p.ConvID + "/" + p.SubTaskID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate sub_task_id %s", memory.ErrInvalidInput, p.SubTaskID)
		}
		seen[key] = struct{}{}
		d := planDocFrom(p)
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.UpdatedAt = now
		docs = append(docs, d)
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", memory.ErrInvalidInput, err)
		}
		return err
	}
	return nil
}

// GetByConvID implements memory.GptsPlansMemory.
func (s *MongoPlans) GetByConvID(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.find(ctx, bson.M{"conv_id": convID})
}

// GetTodoPlans implements memory.GptsPlansMemory.
func (s *MongoPlans) GetTodoPlans(ctx context.Context, convID string) ([]*types.GptsPlan, error) {
	return s.find(ctx, bson.M{
		"conv_id": convID,
		"state":   bson.M{"$in": bson.A{string(types.PlanStateTodo), string(types.PlanStateRetrying)}},
	})
}

func (s *MongoPlans) find(ctx context.Context, filter bson.M) ([]*types.GptsPlan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sub_task_num", Value: 1}, {Key: "sub_task_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []planDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*types.GptsPlan, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toPlan())
	}
	return out, nil
}

// GetByConvIDAndNum implements memory.GptsPlansMemory.
func (s *MongoPlans) GetByConvIDAndNum(ctx context.Context, convID string, taskIDs []string) ([]*types.GptsPlan, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	found, err := s.find(ctx, bson.M{"conv_id": convID, "sub_task_id": bson.M{"$in": taskIDs}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.GptsPlan, len(found))
	for _, p := range found {
		byID[p.SubTaskID] = p
	}
	out := make([]*types.GptsPlan, 0, len(taskIDs))
	for _, id := range taskIDs {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// CompleteTask implements memory.GptsPlansMemory.
func (s *MongoPlans) CompleteTask(ctx context.Context, convID, taskID, result string) error {
	state := types.PlanStateComplete
	return s.UpdateTask(ctx, convID, taskID, types.PlanUpdate{State: &state, Result: &result})
}

// UpdateTask implements memory.GptsPlansMemory.
func (s *MongoPlans) UpdateTask(ctx context.Context, convID, taskID string, update types.PlanUpdate) error {
	set := bson.M{"updated_at": time.Now()}
	if update.State != nil {
		set["state"] = string(*update.State)
	}
	if update.RetryTimes != nil {
		set["retry_times"] = *update.RetryTimes
	}
	if update.Result != nil {
		set["result"] = *update.Result
	}
	if update.AgentModel != nil {
		set["agent_model"] = *update.AgentModel
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"conv_id": convID, "sub_task_id": taskID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s", memory.ErrPlanNotFound, convID, taskID)
	}
	return nil
}

// RemoveByConvID implements memory.GptsPlansMemory.
func (s *MongoPlans) RemoveByConvID(ctx context.Context, convID string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"conv_id": convID})
	return err
}

// ExpireBefore implements memory.Expirer.
func (s *MongoPlans) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return expireMongo(ctx, s.coll, "updated_at", cutoff)
}

type messageDoc struct {
	MessageID     string              `bson:"message_id"`
	ConvID        string              `bson:"conv_id"`
	Rounds        int                 `bson:"rounds"`
	Sender        string              `bson:"sender"`
	Receiver      string              `bson:"receiver"`
	Role          string              `bson:"role"`
	Content       string              `bson:"content"`
	CurrentGoal   string              `bson:"current_goal"`
	Context       map[string]any      `bson:"context,omitempty"`
	ReviewInfo    *types.ReviewInfo   `bson:"review_info,omitempty"`
	ActionReport  *types.ActionOutput `bson:"action_report,omitempty"`
	ModelName     string              `bson:"model_name"`
	Success       bool                `bson:"success"`
	IsTermination bool                `bson:"is_termination"`
	CreatedAt     time.Time           `bson:"created_at"`
}

func messageDocFrom(m *types.AgentMessage) *messageDoc {
	return &messageDoc{
		MessageID: m.MessageID, ConvID: m.ConvID, Rounds: m.Rounds,
		Sender: m.Sender, Receiver: m.Receiver, Role: string(m.Role),
		Content: m.Content, CurrentGoal: m.CurrentGoal, Context: m.Context,
		ReviewInfo: m.ReviewInfo, ActionReport: m.ActionReport, ModelName: m.ModelName,
		Success: m.Success, IsTermination: m.IsTermination, CreatedAt: m.CreatedAt,
	}
}

func (d *messageDoc) toMessage() *types.AgentMessage {
	return &types.AgentMessage{
		MessageID: d.MessageID, ConvID: d.ConvID, Rounds: d.Rounds,
		Sender: d.Sender, Receiver: d.Receiver, Role: types.MessageRole(d.Role),
		Content: d.Content, CurrentGoal: d.CurrentGoal, Context: d.Context,
		ReviewInfo: d.ReviewInfo, ActionReport: d.ActionReport, ModelName: d.ModelName,
		Success: d.Success, IsTermination: d.IsTermination, CreatedAt: d.CreatedAt,
	}
}

// MongoMessages GptsMessageMemory 的 Mongo 实现
type MongoMessages struct {
	coll *mongo.Collection
}

var _ memory.GptsMessageMemory = (*MongoMessages)(nil)
var _ memory.Expirer = (*MongoMessages)(nil)

// NewMongoMessages 创建 Mongo 消息存储并确保索引存在
func NewMongoMessages(ctx context.Context, db *mongo.Database) (*MongoMessages, error) {
	coll := db.Collection(messagesTable)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conv_id", Value: 1}, {Key: "rounds", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "conv_id", Value: 1}, {Key: "sender", Value: 1}, {Key: "receiver", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message indexes: %w", err)
	}
	return &MongoMessages{coll: coll}, nil
}

// Append implements memory.GptsMessageMemory.
func (s *MongoMessages) Append(ctx context.Context, msg *types.AgentMessage) error {
	if msg == nil || msg.ConvID == "" {
		return fmt.Errorf("%w: message requires conv_id", memory.ErrInvalidInput)
	}
	d := messageDocFrom(msg)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, d)
	return err
}

// GetByConvID implements memory.GptsMessageMemory.
func (s *MongoMessages) GetByConvID(ctx context.Context, convID string) ([]*types.AgentMessage, error) {
	return s.find(ctx, bson.M{"conv_id": convID})
}

// GetBetweenAgents implements memory.GptsMessageMemory.
func (s *MongoMessages) GetBetweenAgents(ctx context.Context, convID, agent1, agent2, goal string) ([]*types.AgentMessage, error) {
	filter := bson.M{
		"conv_id": convID,
		"$or": bson.A{
			bson.M{"sender": agent1, "receiver": agent2},
			bson.M{"sender": agent2, "receiver": agent1},
		},
	}
	if goal != "" {
		filter["current_goal"] = goal
	}
	return s.find(ctx, filter)
}

func (s *MongoMessages) find(ctx context.Context, filter bson.M) ([]*types.AgentMessage, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "rounds", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*types.AgentMessage, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toMessage())
	}
	return out, nil
}

// GetLastMessage implements memory.GptsMessageMemory.
func (s *MongoMessages) GetLastMessage(ctx context.Context, convID string) (*types.AgentMessage, error) {
	var d messageDoc
	err := s.coll.FindOne(ctx, bson.M{"conv_id": convID},
		options.FindOne().SetSort(bson.D{{Key: "rounds", Value: -1}})).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.toMessage(), nil
}

// ExpireBefore implements memory.Expirer.
func (s *MongoMessages) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return expireMongo(ctx, s.coll, "created_at", cutoff)
}

// expireMongo 按会话聚合最后活跃时间，删除早于 cutoff 的会话
func expireMongo(ctx context.Context, coll *mongo.Collection, field string, cutoff time.Time) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conv_id"},
			{Key: "last", Value: bson.D{{Key: "$max", Value: "$" + field}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "last", Value: bson.D{{Key: "$lt", Value: cutoff}}}}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var groups []struct {
		ConvID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, nil
	}
	ids := make(bson.A, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ConvID)
	}
	if _, err := coll.DeleteMany(ctx, bson.M{"conv_id": bson.M{"$in": ids}}); err != nil {
		return 0, err
	}
	return len(groups), nil
}
