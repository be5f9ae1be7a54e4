package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"

	modelGraphQl "github.com/kirsrus/termopad/agent/service/web/graph/model"

	"github.com/99designs/gqlgen/graphql"
	"github.com/juju/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSource string

// ResolverRoot корневые резолверы схемы
type ResolverRoot interface {
	Query() QueryResolver
	Subscription() SubscriptionResolver
}

// QueryResolver резолвер полей типа Query
type QueryResolver interface {
	Status(ctx context.Context) (*modelGraphQl.Status, error)
	Thresholds(ctx context.Context) (*modelGraphQl.Thresholds, error)
	History(ctx context.Context, days int, offsetDays int, compact bool) ([]*modelGraphQl.TemperatureMetric, error)
	ThresholdsLog(ctx context.Context, days int) ([]*modelGraphQl.ThresholdsChange, error)
}

// SubscriptionResolver резолвер полей типа Subscription
type SubscriptionResolver interface {
	TelemetryChanged(ctx context.Context) (<-chan *modelGraphQl.Telemetry, error)
}

// Исполнение запросов по схеме schema.graphqls. Разбор и проверку запроса выполняет
// gqlgen до вызова Exec, здесь только вызов резолверов и вывод выбранных полей
type executableSchema struct {
	schema    *ast.Schema
	resolvers ResolverRoot
}

// NewExecutableSchema схема GraphQL поверх резолверов resolvers
func NewExecutableSchema(resolvers ResolverRoot) (graphql.ExecutableSchema, error) {
	if resolvers == nil {
		return nil, errors.New("не переданы резолверы")
	}
	schema, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})
	if gqlErr != nil {
		return nil, errors.Annotate(gqlErr, "ошибка разбора схемы GraphQL")
	}
	return &executableSchema{schema: schema, resolvers: resolvers}, nil
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)
	switch rc.Operation.Operation {
	case ast.Query:
		return oneShot(e.query(ctx, rc))
	case ast.Subscription:
		return e.subscription(ctx, rc)
	default:
		return oneShot(errorResponse("операция %s не поддерживается", rc.Operation.Operation))
	}
}

// Выполнение запроса: каждое корневое поле вычисляется независимо, ошибка поля
// даёт null и запись в errors
func (e *executableSchema) query(ctx context.Context, rc *graphql.OperationContext) *graphql.Response {
	var (
		buf  bytes.Buffer
		errs gqlerror.List
	)
	buf.WriteByte('{')
	for i, field := range graphql.CollectFields(rc, rc.Operation.SelectionSet, []string{"Query"}) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeLeaf(&buf, field.Alias)
		buf.WriteByte(':')

		value, err := e.resolveQuery(ctx, rc, field)
		if err == nil {
			value, err = toTree(value)
		}
		if err != nil {
			errs = append(errs, gqlerror.Errorf("%s: %v", field.Alias, err))
			buf.WriteString("null")
			continue
		}
		e.write(&buf, rc, value, e.fieldType("Query", field.Name), field.Selections)
	}
	buf.WriteByte('}')
	return &graphql.Response{Data: buf.Bytes(), Errors: errs}
}

func (e *executableSchema) resolveQuery(ctx context.Context, rc *graphql.OperationContext, field graphql.CollectedField) (interface{}, error) {
	resolver := e.resolvers.Query()
	switch field.Name {
	case "__typename":
		return "Query", nil
	case "status":
		return resolver.Status(ctx)
	case "thresholds":
		return resolver.Thresholds(ctx)
	case "history":
		args := field.ArgumentMap(rc.Variables)
		return resolver.History(ctx, intArg(args, "days"), intArg(args, "offsetDays"), boolArg(args, "compact"))
	case "thresholdsLog":
		args := field.ArgumentMap(rc.Variables)
		return resolver.ThresholdsLog(ctx, intArg(args, "days"))
	default:
		return nil, errors.Errorf("поле %s не поддерживается", field.Name)
	}
}

// Подписка: каждая запись из канала резолвера отдаётся отдельным ответом до завершения ctx
func (e *executableSchema) subscription(ctx context.Context, rc *graphql.OperationContext) graphql.ResponseHandler {
	fields := graphql.CollectFields(rc, rc.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 {
		return oneShot(errorResponse("подписка должна содержать ровно одно поле"))
	}
	field := fields[0]
	if field.Name != "telemetryChanged" {
		return oneShot(errorResponse("подписка %s не поддерживается", field.Name))
	}
	ch, err := e.resolvers.Subscription().TelemetryChanged(ctx)
	if err != nil {
		return oneShot(errorResponse("%s: %v", field.Alias, err))
	}
	typeName := e.fieldType("Subscription", field.Name)

	return func(ctx context.Context) *graphql.Response {
		var telemetry *modelGraphQl.Telemetry
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			telemetry = v
		}
		value, err := toTree(telemetry)
		if err != nil {
			return errorResponse("%s: %v", field.Alias, err)
		}
		var buf bytes.Buffer
		buf.WriteByte('{')
		writeLeaf(&buf, field.Alias)
		buf.WriteByte(':')
		e.write(&buf, rc, value, typeName, field.Selections)
		buf.WriteByte('}')
		return &graphql.Response{Data: buf.Bytes()}
	}
}

// Вывод значения value типа typeName с учётом выбранных полей sel
func (e *executableSchema) write(buf *bytes.Buffer, rc *graphql.OperationContext, value interface{}, typeName string, sel ast.SelectionSet) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			e.write(buf, rc, item, typeName, sel)
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		buf.WriteByte('{')
		for i, field := range graphql.CollectFields(rc, sel, []string{typeName}) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeLeaf(buf, field.Alias)
			buf.WriteByte(':')
			if field.Name == "__typename" {
				writeLeaf(buf, typeName)
				continue
			}
			e.write(buf, rc, v[field.Name], e.fieldType(typeName, field.Name), field.Selections)
		}
		buf.WriteByte('}')
	default:
		writeLeaf(buf, v)
	}
}

// Имя типа поля field объекта typeName (для списков - тип элемента)
func (e *executableSchema) fieldType(typeName, field string) string {
	def := e.schema.Types[typeName]
	if def == nil {
		return ""
	}
	fieldDef := def.Fields.ForName(field)
	if fieldDef == nil {
		return ""
	}
	return fieldDef.Type.Name()
}

// Значение резолвера в виде дерева map/slice/json.Number по JSON-тегам модели
func toTree(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка кодирования результата")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var res interface{}
	if err = dec.Decode(&res); err != nil {
		return nil, errors.Annotate(err, "ошибка кодирования результата")
	}
	return res, nil
}

func writeLeaf(buf *bytes.Buffer, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(data)
}

func intArg(args map[string]interface{}, name string) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func boolArg(args map[string]interface{}, name string) bool {
	v, _ := args[name].(bool)
	return v
}

func errorResponse(format string, args ...interface{}) *graphql.Response {
	return &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf(format, args...)}}
}

func oneShot(resp *graphql.Response) graphql.ResponseHandler {
	first := true
	return func(context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		return resp
	}
}
