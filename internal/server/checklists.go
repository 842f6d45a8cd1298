package server

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/review-orchestrator/internal/checklist"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

type PageInput struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ExtractChecklistRequest extracts items into an existing checklist
// (CheckListID) or a new one (Name). Pages come inline or from a text
// document in the object store, split into pages on form feeds.
type ExtractChecklistRequest struct {
	CheckListID  *uuid.UUID  `json:"checkListId,omitempty"`
	Name         string      `json:"name,omitempty"`
	Description  string      `json:"description,omitempty"`
	DocumentName string      `json:"documentName,omitempty"`
	Pages        []PageInput `json:"pages,omitempty"`
	TextPath     string      `json:"textPath,omitempty"`
}

type ExtractChecklistResponse struct {
	CheckList *entity.CheckList  `json:"checkList"`
	Items     []entity.CheckItem `json:"items"`
	Artifacts []string           `json:"artifacts"`
	Usage     entity.Usage       `json:"usage"`
}

func (s *ReviewServer) ExtractChecklist(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExtractChecklistRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	v := common.NewValidator().
		Field("description", req.Description, common.MaxLength(maxCommentLength)).
		Field("documentName", req.DocumentName, common.MaxLength(maxNameLength))
	if req.CheckListID == nil {
		v.Field("name", req.Name, common.Required, common.MaxLength(maxNameLength))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	pages, err := s.pages(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: pages or textPath is required", common.ErrInvalidInput)
	}

	var cl *entity.CheckList
	if req.CheckListID != nil {
		if cl, err = s.store.GetCheckList(ctx, *req.CheckListID); err != nil {
			return nil, err
		}
	} else {
		cl = &entity.CheckList{Name: strings.TrimSpace(req.Name), Description: req.Description}
		if err := s.store.CreateCheckList(ctx, cl); err != nil {
			return nil, err
		}
	}

	docName := req.DocumentName
	if docName == "" && req.TextPath != "" {
		docName = path.Base(req.TextPath)
	}
	res, err := s.extractor.Extract(ctx, checklist.ExtractRequest{
		CheckListID:  cl.ID,
		DocumentName: docName,
		Pages:        pages,
	})
	if err != nil {
		return nil, err
	}
	if res.Artifacts == nil {
		res.Artifacts = []string{}
	}
	s.logger.Info("checklist.extract.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"check_list_id", cl.ID,
		"pages", len(pages),
		"items", len(res.Items),
	)
	return encode(ExtractChecklistResponse{
		CheckList: cl,
		Items:     res.Items,
		Artifacts: res.Artifacts,
		Usage:     res.Usage,
	})
}

func (s *ReviewServer) pages(ctx context.Context, req ExtractChecklistRequest) ([]checklist.Page, error) {
	if len(req.Pages) > 0 {
		out := make([]checklist.Page, 0, len(req.Pages))
		for i, p := range req.Pages {
			n := p.Number
			if n == 0 {
				n = i + 1
			}
			out = append(out, checklist.Page{Number: n, Text: p.Text})
		}
		return out, nil
	}
	if req.TextPath == "" {
		return nil, nil
	}
	if s.documents == nil {
		return nil, fmt.Errorf("%w: document store not configured", common.ErrPrecondition)
	}
	body, err := s.documents.Get(ctx, req.TextPath)
	if err != nil {
		return nil, notFoundDocument(req.TextPath, err)
	}
	return SplitPages(string(body)), nil
}

// SplitPages splits text on form feeds, dropping blank pages but keeping the
// original page numbers.
func SplitPages(text string) []checklist.Page {
	var out []checklist.Page
	for i, p := range strings.Split(text, "\f") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, checklist.Page{Number: i + 1, Text: p})
	}
	return out
}
