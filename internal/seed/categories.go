// Package seed populates the category tree and the initial task queues.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// genre is one top-level node plus its leaf categories. Leaf names double as
// the site's listing tags during discovery.
type genre struct {
	name   string
	leaves []string
}

var categoryTree = []genre{
	{"文学", []string{
		"小说", "文学", "外国文学", "经典", "中国文学", "随笔", "日本文学",
		"散文", "诗歌", "童话", "儿童文学", "名著", "古典文学", "当代文学",
		"杂文", "外国名著", "诗词", "港台",
	}},
	{"流行", []string{
		"漫画", "推理", "绘本", "悬疑", "科幻", "青春", "言情", "推理小说",
		"奇幻", "日本漫画", "武侠", "耽美", "科幻小说", "网络小说", "穿越",
		"轻小说", "魔幻", "青春文学", "校园",
	}},
	{"文化", []string{
		"历史", "心理学", "哲学", "社会学", "传记", "文化", "艺术", "社会",
		"政治", "设计", "政治学", "宗教", "中国历史", "电影", "建筑", "数学",
		"回忆录", "思想", "人物传记", "艺术史", "国学", "人文", "音乐", "绘画",
		"戏剧", "西方哲学", "近代史", "二战", "军事", "佛教", "考古", "美术",
		"自由主义",
	}},
	{"生活", []string{
		"爱情", "成长", "生活", "女性", "心理", "旅行", "励志", "教育",
		"摄影", "职场", "美食", "游记", "健康", "灵修", "情感", "人际关系",
		"两性", "养生", "手工", "家居", "自助游",
	}},
	{"经管", []string{
		"经济学", "管理", "经济", "商业", "金融", "投资", "营销", "理财",
		"创业", "股票", "广告", "企业史", "策划",
	}},
	{"科技", []string{
		"科普", "互联网", "科学", "编程", "交互设计", "算法", "用户体验",
		"科技", "web", "交互", "通信", "UE", "神经网络", "UCD", "程序",
	}},
}

// Seeder writes the initial category tree and task queues.
type Seeder struct {
	records harvest.RecordStore
	tasks   harvest.TaskStore
	ids     harvest.IDGenerator
	log     *zap.Logger
}

// New builds a Seeder.
func New(records harvest.RecordStore, tasks harvest.TaskStore, ids harvest.IDGenerator, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{records: records, tasks: tasks, ids: ids, log: log}
}

// Categories inserts the two-level genre tree. Nodes already present by name
// keep their ids, so re-running is safe.
func (s *Seeder) Categories(ctx context.Context) (created int, err error) {
	for genreIdx, g := range categoryTree {
		parentID, err := s.records.CategoryIDByName(ctx, g.name, "")
		if err != nil {
			return created, fmt.Errorf("lookup genre %s: %w", g.name, err)
		}
		if parentID == "" {
			parentID, err = s.ids.NewID()
			if err != nil {
				return created, fmt.Errorf("mint genre id: %w", err)
			}
			if err := s.records.UpsertCategory(ctx, catalog.Category{
				CategoryID: parentID,
				Name:       g.name,
				Level:      1,
				SortOrder:  genreIdx,
			}); err != nil {
				return created, fmt.Errorf("seed genre %s: %w", g.name, err)
			}
			created++
			s.log.Info("genre created", zap.String("name", g.name))
		}
		for leafIdx, leaf := range g.leaves {
			existing, err := s.records.CategoryIDByName(ctx, leaf, parentID)
			if err != nil {
				return created, fmt.Errorf("lookup category %s: %w", leaf, err)
			}
			if existing != "" {
				continue
			}
			leafID, err := s.ids.NewID()
			if err != nil {
				return created, fmt.Errorf("mint category id: %w", err)
			}
			if err := s.records.UpsertCategory(ctx, catalog.Category{
				CategoryID: leafID,
				Name:       leaf,
				ParentID:   parentID,
				Level:      2,
				SortOrder:  leafIdx,
			}); err != nil {
				return created, fmt.Errorf("seed category %s: %w", leaf, err)
			}
			created++
		}
	}
	return created, nil
}

// BookTasks enqueues one discovery task per leaf category with the given
// per-category target. Categories that already carry a task are skipped.
func (s *Seeder) BookTasks(ctx context.Context, targetPerCategory int) (created int, err error) {
	if targetPerCategory <= 0 {
		return 0, fmt.Errorf("target per category must be positive")
	}
	leaves, err := s.records.ListLeafCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("list leaf categories: %w", err)
	}
	for _, leaf := range leaves {
		ok, err := s.tasks.EnqueueBookTask(ctx, leaf.CategoryID, leaf.Name, targetPerCategory)
		if err != nil {
			return created, fmt.Errorf("enqueue book task for %s: %w", leaf.Name, err)
		}
		if ok {
			created++
		}
	}
	s.log.Info("book tasks seeded", zap.Int("created", created), zap.Int("categories", len(leaves)))
	return created, nil
}

// FileTasks enqueues one acquisition task per stored resource. Resources
// without an ISBN cannot be searched and are skipped.
func (s *Seeder) FileTasks(ctx context.Context) (created int, err error) {
	refs, err := s.records.ListResourceRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list resources: %w", err)
	}
	for _, ref := range refs {
		if ref.ISBN == "" {
			continue
		}
		ok, err := s.tasks.EnqueueFileTask(ctx, ref.ResourceID, ref.ISBN, ref.Title)
		if err != nil {
			return created, fmt.Errorf("enqueue file task for %s: %w", ref.ResourceID, err)
		}
		if ok {
			created++
		}
	}
	s.log.Info("file tasks seeded", zap.Int("created", created), zap.Int("resources", len(refs)))
	return created, nil
}
