package logic

import (
	"context"
	"strings"

	"robosim/backend/common/logger"
	"robosim/backend/internal/model"
	"robosim/backend/internal/svc"
	"robosim/backend/internal/types"

	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TemplateLogic 模板管理逻辑
type TemplateLogic struct {
	ctx context.Context
}

// NewTemplateLogic 创建模板管理逻辑
func NewTemplateLogic(ctx context.Context) *TemplateLogic {
	return &TemplateLogic{ctx: ctx}
}

// CreateTemplateReq 创建模板请求
type CreateTemplateReq struct {
	Name          string   `json:"name" validate:"required"`
	Description   string   `json:"description"`
	BagObjectPath string   `json:"bagObjectPath" validate:"required"`
	Topics        []string `json:"topics"`
}

// Create 创建模板，rosbag对象必须已存在于对象存储
func (l *TemplateLogic) Create(req *CreateTemplateReq) (*model.Template, error) {
	exists, err := svc.Ctx.Bags.Exists(l.ctx, req.BagObjectPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeBagObjectMissing,
			"rosbag对象不存在", req.BagObjectPath)
	}

	topics := slice.Compact(slice.Map(req.Topics, func(_ int, t string) string {
		return strings.TrimSpace(t)
	}))

	tpl := &model.Template{
		Name:          req.Name,
		Description:   req.Description,
		BagObjectPath: req.BagObjectPath,
		Topics:        strings.Join(topics, ","),
	}
	if err := svc.Ctx.DB.WithContext(l.ctx).Create(tpl).Error; err != nil {
		return nil, err
	}
	logger.Info("模板已创建",
		zap.Uint("template_id", tpl.ID),
		zap.String("bag_object_path", tpl.BagObjectPath))
	return tpl, nil
}

// Get 查询模板
func (l *TemplateLogic) Get(templateID uint) (*model.Template, error) {
	var tpl model.Template
	if err := svc.Ctx.DB.WithContext(l.ctx).First(&tpl, templateID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.ErrTemplateNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

// List 分页查询模板列表
func (l *TemplateLogic) List(keyword string, page, pageSize int) ([]model.Template, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := svc.Ctx.DB.WithContext(l.ctx).Model(&model.Template{})
	if keyword != "" {
		query = query.Where("name LIKE ?", "%"+keyword+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var templates []model.Template
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&templates).Error
	return templates, total, err
}

// Delete 删除模板，被仿真引用的模板不允许删除
func (l *TemplateLogic) Delete(templateID uint) error {
	tpl, err := l.Get(templateID)
	if err != nil {
		return err
	}

	var refs int64
	if err := svc.Ctx.DB.WithContext(l.ctx).Model(&model.SimulationStep{}).
		Where("template_id = ?", templateID).Count(&refs).Error; err != nil {
		return err
	}
	if refs == 0 {
		if err := svc.Ctx.DB.WithContext(l.ctx).Model(&model.SimulationGroup{}).
			Where("template_id = ?", templateID).Count(&refs).Error; err != nil {
			return err
		}
	}
	if refs > 0 {
		return types.NewAppError(types.ErrCodeRunConflict, "模板被仿真引用，不能删除")
	}

	if err := svc.Ctx.DB.WithContext(l.ctx).Delete(tpl).Error; err != nil {
		return err
	}

	// rosbag对象随模板清理；仍被其他模板共用时保留，清理失败只告警
	var shared int64
	if err := svc.Ctx.DB.WithContext(l.ctx).Model(&model.Template{}).
		Where("bag_object_path = ?", tpl.BagObjectPath).Count(&shared).Error; err != nil {
		logger.Warn("检查rosbag对象共用失败",
			zap.String("bag_object_path", tpl.BagObjectPath), zap.Error(err))
		return nil
	}
	if shared == 0 {
		if err := svc.Ctx.Bags.Delete(l.ctx, tpl.BagObjectPath); err != nil {
			logger.Warn("清理rosbag对象失败",
				zap.String("bag_object_path", tpl.BagObjectPath), zap.Error(err))
		}
	}
	return nil
}
