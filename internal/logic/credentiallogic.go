package logic

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/internal/model"
	"botfleet/internal/svc"
	"botfleet/internal/types"
	"botfleet/pkg/broker"
)

type CredentialLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCredentialLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CredentialLogic {
	return &CredentialLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// requiredFieldsByKind mirrors the per-broker validation from the API
// contract; field names use the request's camelCase spelling.
var requiredFieldsByKind = map[string][]string{
	"capital":     {"apiKey", "identifier", "password"},
	"capital.com": {"apiKey", "identifier", "password"},
	"binance":     {"apiKey", "secretKey"},
	"coinbase":    {"apiKey", "apiSecret", "passphrase"},
}

func missingFields(kind string, fields map[string]string) ([]string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "custom" {
		if len(fields) == 0 {
			return []string{"at least one key"}, nil
		}
		return nil, nil
	}
	required, ok := requiredFieldsByKind[kind]
	if !ok {
		return nil, errBadRequest("unknown broker kind " + kind)
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing, nil
}

func (l *CredentialLogic) Create(userID string, req *types.CredentialRequest) (*types.CredentialResponse, error) {
	if req.Name == "" || req.Broker == "" {
		return nil, errBadRequest("name and broker are required")
	}
	missing, err := missingFields(req.Broker, req.Fields)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, errConflict("missing required fields: "+strings.Join(missing, ", "), "MISSING_FIELDS")
	}

	payload, err := sealPayload(l.svcCtx, req)
	if err != nil {
		return nil, mapError(err)
	}
	row := &model.Credentials{
		Id:        uuid.NewString(),
		UserId:    userID,
		Name:      req.Name,
		Broker:    normaliseBroker(req.Broker),
		Payload:   payload,
		IsDemo:    req.IsDemo,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := l.svcCtx.Repo.Creds.Insert(l.ctx, row); err != nil {
		return nil, mapError(err)
	}
	return credentialResponse(row, req.Fields), nil
}

func (l *CredentialLogic) Get(userID, id string) (*types.CredentialResponse, error) {
	row, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}
	return credentialResponse(row, l.fieldNames(row)), nil
}

func (l *CredentialLogic) List(userID string) (*types.CredentialListResponse, error) {
	rows, err := l.svcCtx.Repo.Creds.ListByUser(l.ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := &types.CredentialListResponse{Credentials: make([]types.CredentialResponse, 0, len(rows))}
	for i := range rows {
		out.Credentials = append(out.Credentials, *credentialResponse(&rows[i], l.fieldNames(&rows[i])))
	}
	return out, nil
}

func (l *CredentialLogic) Update(userID string, req *types.UpdateCredentialRequest) (*types.CredentialResponse, error) {
	row, err := l.owned(userID, req.Id)
	if err != nil {
		return nil, err
	}
	if req.Broker != "" {
		row.Broker = normaliseBroker(req.Broker)
	}
	if req.Name != "" {
		row.Name = req.Name
	}
	row.IsDemo = req.IsDemo
	if len(req.Fields) > 0 {
		missing, err := missingFields(row.Broker, req.Fields)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			return nil, errConflict("missing required fields: "+strings.Join(missing, ", "), "MISSING_FIELDS")
		}
		payload, err := sealPayload(l.svcCtx, &req.CredentialRequest)
		if err != nil {
			return nil, mapError(err)
		}
		row.Payload = payload
	}
	if err := l.svcCtx.Repo.Creds.Update(l.ctx, row); err != nil {
		return nil, mapError(err)
	}
	// Session/rate state built on the old secret is stale now.
	l.svcCtx.DisposeCredential(row.Id)
	return credentialResponse(row, l.fieldNames(row)), nil
}

func (l *CredentialLogic) Delete(userID, id string) error {
	if _, err := l.owned(userID, id); err != nil {
		return err
	}
	bots, err := l.svcCtx.Repo.Bots.ActiveByCredential(l.ctx, id)
	if err != nil {
		return mapError(err)
	}
	if len(bots) > 0 {
		return errConflict("credential is referenced by active bots", "CREDENTIAL_IN_USE")
	}
	if err := l.svcCtx.Repo.Creds.Delete(l.ctx, id); err != nil {
		return mapError(err)
	}
	l.svcCtx.DisposeCredential(id)
	return nil
}

// Verify checks shape only; live credential probing is unspecified and left
// as future work.
func (l *CredentialLogic) Verify(userID, id string) (*types.VerifyCredentialResponse, error) {
	row, err := l.owned(userID, id)
	if err != nil {
		return nil, err
	}
	cfg, err := l.svcCtx.Repo.LoadCredential(l.ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if err := cfg.Validate(); err != nil {
		return &types.VerifyCredentialResponse{Valid: false, Missing: l.shapeGaps(row.Broker, &cfg)}, nil
	}
	return &types.VerifyCredentialResponse{Valid: true}, nil
}

func (l *CredentialLogic) shapeGaps(kind string, cfg *broker.CredentialConfig) []string {
	fields := map[string]string{
		"apiKey":     cfg.APIKey,
		"identifier": cfg.Identifier,
		"password":   cfg.Password,
		"secretKey":  cfg.SecretKey,
		"apiSecret":  cfg.APISecret,
		"passphrase": cfg.Passphrase,
	}
	missing, err := missingFields(kind, fields)
	if err != nil {
		return nil
	}
	return missing
}

func (l *CredentialLogic) owned(userID, id string) (*model.Credentials, error) {
	row, err := l.svcCtx.Repo.Creds.FindOne(l.ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if row.UserId != userID {
		return nil, errNotFound("credential not found")
	}
	return row, nil
}

// fieldNames opens the payload just to report which keys are present;
// secret values never leave the server.
func (l *CredentialLogic) fieldNames(row *model.Credentials) map[string]string {
	plain, err := l.svcCtx.Box.Open(row.Payload)
	if err != nil {
		return nil
	}
	var fields map[string]string
	if err := json.Unmarshal(plain, &fields); err != nil {
		return nil
	}
	return fields
}

func sealPayload(svcCtx *svc.ServiceContext, req *types.CredentialRequest) (string, error) {
	fields := make(map[string]string, len(req.Fields)+1)
	for k, v := range req.Fields {
		fields[k] = v
	}
	fields["broker"] = normaliseBroker(req.Broker)
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return svcCtx.Box.Seal(raw)
}

// normaliseBroker folds the brokerName/broker alias and the capital.com
// spelling onto the canonical kind.
func normaliseBroker(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "capital.com" {
		return "capital"
	}
	return kind
}

func credentialResponse(row *model.Credentials, fields map[string]string) *types.CredentialResponse {
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if name == "broker" || strings.TrimSpace(value) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &types.CredentialResponse{
		Id:         row.Id,
		Name:       row.Name,
		Broker:     row.Broker,
		IsDemo:     row.IsDemo,
		FieldNames: names,
	}
}
