package meteo

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type seriesArgs struct {
	Start time.Time     `validate:"required"`
	End   time.Time     `validate:"required,gtefield=Start"`
	Step  time.Duration `validate:"gte=0"`
}

type instantArgs struct {
	At time.Time `validate:"required"`
}

type paramArgs struct {
	Parameters []string `validate:"dive,required,excludesall=/0x2C"`
}

type pointArgs struct {
	Points []model.Point `validate:"required,min=1,dive"`
}

type fileArgs struct {
	Path string `validate:"required"`
}

type stationArgs struct {
	Location *model.Point `validate:"omitempty"`
	Start    time.Time
	End      time.Time `validate:"omitempty,gtefield=Start"`
}

// check runs struct validation and maps the first failure to ErrInvalidArgument.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.Invalidf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return model.Invalidf("%v", err)
}

func checkSeries(ts model.TimeSeries) error {
	if err := check(seriesArgs{Start: ts.Start, End: ts.End, Step: ts.Step}); err != nil {
		return err
	}
	return ts.Validate()
}

func checkInstant(t time.Time) error {
	return check(instantArgs{At: t})
}

func checkParams(params []string) error {
	if len(params) == 0 {
		return model.ErrEmptyParameterList
	}
	return check(paramArgs{Parameters: params})
}

func checkPoints(ps []model.Point) error {
	if err := check(pointArgs{Points: ps}); err != nil {
		return err
	}
	return model.Points(ps).Validate()
}

// checkGrid requires a bbox with a declared resolution.
func checkGrid(bb model.BBox) error {
	if bb.Res.Kind() == model.ResolutionNone {
		return model.Invalidf("grid queries need a resolution (Degrees or Pixels)")
	}
	return bb.Validate()
}

func checkPath(path string) error {
	return check(fileArgs{Path: path})
}

func checkStations(q StationQuery) error {
	if err := check(stationArgs{Location: q.Location, Start: q.Start, End: q.End}); err != nil {
		return err
	}
	if q.Location != nil {
		return q.Location.Validate()
	}
	return nil
}
