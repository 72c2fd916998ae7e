package main

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/ptolemy-maps/ptolemy/pkg/fetch"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

func tileFromParams(z, x, y int) model.Tile {
	return model.Tile{X: x, Y: y, Z: z}
}

func NewHttp(app *App) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		EnablePrintRoutes:     false,
	})

	f.Use(logger.New(logger.Config{
		Format: "[${ip}]:${port} ${status} - ${method} ${path} ${queryParams}\n",
	}))

	f.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	f.Get("/servers", getServersHandler(app))
	f.Get("/tiles/:name/:zoom/:x/:y", getTileHandler(app))

	return f
}

func getServersHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		r := make([]map[string]any, 0)

		app.fetchers.All(func(fr *fetch.Fetcher) bool {
			s := fr.Server()

			r = append(r, map[string]any{
				"url":         "/tiles/" + url.QueryEscape(s.GetKey()) + "/{z}/{x}/{y}",
				"min_zoom":    s.GetMinZoom(),
				"max_zoom":    s.GetMaxZoom(),
				"name":        s.GetName(),
				"attribution": s.Attribution,
			})

			return true
		})

		return c.JSON(r)
	}
}

func getTileHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var err error
		var zoom, x, y int

		name, _ := url.QueryUnescape(c.Params("name"))

		if zoom, err = c.ParamsInt("zoom"); err != nil {
			return fmt.Errorf("error: invalid zoom value")
		}

		if x, err = c.ParamsInt("x"); err != nil {
			return fmt.Errorf("error: invalid x value")
		}

		if y, err = c.ParamsInt("y"); err != nil {
			return fmt.Errorf("error: invalid y value")
		}

		fr, ok := app.fetchers.Get(name)

		if !ok {
			return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("server %s is not found", name))
		}

		if err := fr.Server().CheckZoom(zoom); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		data, _, err := fr.FetchBytes(c.Context(), tileFromParams(zoom, x, y))

		if err != nil {
			app.logger.Error("error getting tile", "error", err)
			return c.Status(fiber.StatusBadGateway).SendString(err.Error())
		}

		c.Set("Content-Type", fr.Server().GetContentType())

		if _, err := c.Write(data); err != nil {
			app.logger.Error("error writing response", "error", err)
			return err
		}

		return nil
	}
}
